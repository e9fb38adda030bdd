package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/config"
	"github.com/kilupskalvis/aliasmig/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new aliasmig project",
	Long: `Initialize a new aliasmig project in the current directory.
This creates a .aliasmig directory holding the configuration and the schema
database. Credentials go in .aliasmig/.env (ALIASMIG_USERNAME,
ALIASMIG_PASSWORD, ALIASMIG_API_KEY).`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var (
	initURL      string
	initSkipPing bool
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", config.DefaultClusterURL, "Cluster URL")
	initCmd.Flags().BoolVar(&initSkipPing, "skip-ping", false, "Do not check that the cluster is reachable")
}

func runInit(cmd *cobra.Command, args []string) {
	// Check if already initialized
	if _, err := config.FindRoot(); err == nil {
		exitError("aliasmig project already exists")
	}

	fmt.Printf("Initializing aliasmig project...\n")
	fmt.Printf("Cluster URL: %s\n", initURL)

	if !initSkipPing {
		client, err := cluster.NewClient(cluster.Config{
			Addresses: []string{initURL},
			Username:  os.Getenv(config.EnvUsername),
			Password:  os.Getenv(config.EnvPassword),
			APIKey:    os.Getenv(config.EnvAPIKey),
		})
		if err != nil {
			exitError("%v", err)
		}

		fmt.Printf("Connecting to cluster...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = client.Ping(ctx)
		cancel()
		if err != nil {
			exitError("failed to connect to cluster: %v", err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd, initURL)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("\nInitialized empty aliasmig project in %s/\n", config.Dir)
	fmt.Printf("\nRun 'aliasmig schema import <alias> <dir>' to add a schema definition.\n")
}
