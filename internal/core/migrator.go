// Package core implements the migration engine: change classification,
// minimal patches, display diffs, the in-place applier, the reindex
// orchestrator and post-migration verification.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// Options tunes a migration run.
type Options struct {
	// PollInterval is the delay between reindex task status checks
	PollInterval time.Duration
	// ReindexTimeout bounds how long a single reindex task may run
	ReindexTimeout time.Duration
	Rules          Rules
	// Now supplies the timestamp used to name new indices
	Now func() time.Time
}

// DefaultOptions returns the defaults: poll every 5s, wait up to a week.
func DefaultOptions() Options {
	return Options{
		PollInterval:   5 * time.Second,
		ReindexTimeout: 7 * 24 * time.Hour,
		Rules:          DefaultRules(),
		Now:            time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.ReindexTimeout <= 0 {
		o.ReindexTimeout = d.ReindexTimeout
	}
	if o.Rules.ImmutableSettings == nil && o.Rules.ImmutableFieldProperties == nil {
		o.Rules = d.Rules
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// timestamp formats the suffix shared by every index a run creates
func (o Options) timestamp() string {
	return o.Now().UTC().Format("20060102150405")
}

// Outcome says which path a migration took
type Outcome string

const (
	OutcomeUpToDate  Outcome = "up-to-date"
	OutcomeInPlace   Outcome = "in-place"
	OutcomeReindexed Outcome = "reindexed"
)

// Result describes a finished migration. Plan is set only for reindex runs.
type Result struct {
	Alias   string
	Index   string
	Outcome Outcome
	Plan    *models.MigrationPlan
}

// Migrator brings an alias in line with its stored definition.
type Migrator struct {
	client  cluster.ClientInterface
	schemas SchemaSource
	log     Logger
	opts    Options
}

// NewMigrator creates a Migrator. A nil logger discards output.
func NewMigrator(client cluster.ClientInterface, schemas SchemaSource, log Logger, opts Options) *Migrator {
	if log == nil {
		log = NopLogger{}
	}
	return &Migrator{client: client, schemas: schemas, log: log, opts: opts.withDefaults()}
}

// Migrate applies the stored definition to alias. The change is applied in
// place when possible; any failure of that path falls back to a full
// reindex through the orchestrator. Precondition errors are returned as-is.
func (m *Migrator) Migrate(ctx context.Context, alias string) (*Result, error) {
	if _, err := resolveAlias(ctx, m.client, alias); err != nil {
		return nil, err
	}
	if _, err := loadDefinition(m.schemas, alias); err != nil {
		return nil, err
	}

	result, err := m.ApplyNonBreaking(ctx, alias)
	if err == nil {
		return result, nil
	}
	if isPrecondition(err) {
		return nil, err
	}
	m.log.Warn("in-place migration not possible, falling back to reindex", "alias", alias, "reason", err)

	orch := NewOrchestrator(m.client, m.schemas, m.log, m.opts)
	plan, err := orch.Run(ctx, alias)
	if err != nil {
		return nil, err
	}
	return &Result{Alias: alias, Index: plan.NewIndex, Outcome: OutcomeReindexed, Plan: plan}, nil
}

// CreateAlias bootstraps alias from its stored definition: a fresh
// timestamped index is created and the alias added as its write index.
func (m *Migrator) CreateAlias(ctx context.Context, alias string) (string, error) {
	exists, err := m.client.AliasExists(ctx, alias)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %q", ErrAliasExists, alias)
	}
	isIndex, err := m.client.IndexExists(ctx, alias)
	if err != nil {
		return "", err
	}
	if isIndex {
		return "", fmt.Errorf("an index named %q already exists; an alias cannot share its name", alias)
	}

	def, err := loadDefinition(m.schemas, alias)
	if err != nil {
		return "", err
	}

	index := alias + "-" + m.opts.timestamp()
	if err := m.client.CreateIndex(ctx, index, def.Settings, def.Mappings); err != nil {
		return "", err
	}
	if err := updateAliases(ctx, m.client, models.AddAlias(index, alias, true)); err != nil {
		return "", err
	}
	m.log.Info("created alias", "alias", alias, "index", index)
	return index, nil
}

// Preview is a dry run of Migrate: what would change and how.
type Preview struct {
	Alias           string
	Index           string
	Classification  models.Classification
	Reasons         []string
	SettingsPatch   jsonv.Value
	MappingsPatch   jsonv.Value
	SettingsChanges []Change
	MappingsChanges []Change
}

// UpToDate reports whether the live index already matches.
func (p *Preview) UpToDate() bool {
	return len(p.SettingsChanges) == 0 && len(p.MappingsChanges) == 0
}

// Preview computes the classification, patches and display diffs for alias
// without changing anything.
func (m *Migrator) Preview(ctx context.Context, alias string) (*Preview, error) {
	index, err := resolveAlias(ctx, m.client, alias)
	if err != nil {
		return nil, err
	}
	def, err := loadDefinition(m.schemas, alias)
	if err != nil {
		return nil, err
	}
	state, err := cluster.FetchLiveState(ctx, m.client, index)
	if err != nil {
		return nil, err
	}

	live := models.SchemaDefinition{Settings: state.Settings, Mappings: state.Mappings}
	settingsChanges, mappingsChanges := compareDefinition(def, state)
	reasons := m.opts.Rules.BreakingChanges(def, live)

	p := &Preview{
		Alias:           alias,
		Index:           index,
		Classification:  models.NonBreaking,
		Reasons:         reasons,
		SettingsPatch:   SettingsPatch(def.Settings, state.Settings),
		MappingsPatch:   MappingsPatch(def.Mappings, state.Mappings),
		SettingsChanges: settingsChanges,
		MappingsChanges: mappingsChanges,
	}
	if len(reasons) > 0 {
		p.Classification = models.Breaking
	}
	return p, nil
}

// updateAliases applies actions and treats a reported error as failure.
func updateAliases(ctx context.Context, client cluster.ClientInterface, actions ...models.AliasAction) error {
	result, err := client.UpdateAliases(ctx, actions)
	if err != nil {
		return err
	}
	if result.Errors {
		return errors.New("alias update reported errors")
	}
	return nil
}
