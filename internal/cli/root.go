// Package cli implements the command-line interface for aliasmig.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/config"
	"github.com/kilupskalvis/aliasmig/internal/core"
	"github.com/kilupskalvis/aliasmig/internal/migrationlog"
	"github.com/kilupskalvis/aliasmig/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Client cluster.ClientInterface
	Log    *migrationlog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext initializes config and store (no client)
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	log, err := migrationlog.New(migrationlog.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		st.Close()
		exitError("%v", err)
	}

	return &cmdContext{Config: cfg, Store: st, Log: log}
}

// initFullContext initializes config, store, and the cluster client
func initFullContext() *cmdContext {
	ctx := initContext()

	client, err := cluster.NewClient(ctx.Config.ClusterConfig())
	if err != nil {
		ctx.Close()
		exitError("%v", err)
	}
	ctx.Client = client
	ctx.Log.Debug("cluster client ready", "urls", ctx.Config.ClusterURLs)

	return ctx
}

// newMigrator builds a migrator reading definitions from the store
func (c *cmdContext) newMigrator() *core.Migrator {
	opts, err := c.Config.MigrationOptions()
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	return core.NewMigrator(c.Client, c.Store, c.Log, opts)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "aliasmig",
	Short: "Zero-downtime schema migrations for search indices",
	Long: `aliasmig keeps Elasticsearch and OpenSearch indices in line with versioned
schema definitions. Clients address an alias; compatible changes are applied
in place and breaking changes are migrated through a reindex that keeps the
alias readable and writable the whole time.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(seedCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// lastMigrationKey is the store key remembering the last completed migration of an alias
func lastMigrationKey(alias string) string {
	return "last_migration/" + alias
}
