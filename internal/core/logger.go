package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// Logger is the structured logging port used by the migration core.
// kv is a flat list of alternating keys and values.
type Logger interface {
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// indexLogger tees every entry into a log index on the cluster, one
// {timestamp, message} document per line.
type indexLogger struct {
	primary Logger
	client  cluster.ClientInterface
	index   string
	now     func() time.Time
	ctx     context.Context
	broken  bool
}

func newIndexLogger(ctx context.Context, primary Logger, client cluster.ClientInterface, index string, now func() time.Time) *indexLogger {
	return &indexLogger{primary: primary, client: client, index: index, now: now, ctx: ctx}
}

func (l *indexLogger) Info(msg string, kv ...interface{}) {
	l.primary.Info(msg, kv...)
	l.write("INFO", msg, kv)
}

func (l *indexLogger) Warn(msg string, kv ...interface{}) {
	l.primary.Warn(msg, kv...)
	l.write("WARN", msg, kv)
}

func (l *indexLogger) Error(msg string, kv ...interface{}) {
	l.primary.Error(msg, kv...)
	l.write("ERROR", msg, kv)
}

func (l *indexLogger) write(level, msg string, kv []interface{}) {
	if l.broken {
		return
	}
	doc := models.Document{Body: map[string]interface{}{
		"timestamp": l.now().UTC().Format(time.RFC3339Nano),
		"message":   level + " " + formatEntry(msg, kv),
	}}
	if err := l.client.BulkIndex(l.ctx, []models.Document{doc}, l.index); err != nil {
		// reported once; the audit trail is best effort
		l.broken = true
		l.primary.Warn("writing to migration log index failed", "index", l.index, "error", err)
	}
}

// formatEntry renders msg followed by key=value pairs.
func formatEntry(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(kv) {
			fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, "%v", kv[i])
		}
	}
	return b.String()
}
