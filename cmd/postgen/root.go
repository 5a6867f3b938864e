package main

import (
	"context"
	"fmt"

	"branchpost/infrastructure/config"
	"branchpost/infrastructure/di"

	"github.com/spf13/cobra"
)

var (
	storageBackend string
	sqlitePath     string
	promptsFile    string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "postgen",
	Short: "Generate branching posts from the terminal",
	Long: `postgen drives the post generator without the HTTP API.

With no subcommand it starts an interactive session: describe a topic, pick
one of the offered paths, and the finished post tree is printed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storageBackend, "storage", config.StorageSQLite, "storage backend (memory, sqlite)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", "branchpost.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&promptsFile, "prompts", "", "YAML file overriding the built-in prompts")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(showCmd)
}

// openContainer builds the application with in-process dispatch and the
// storage selected by flags. Environment settings fill everything else.
func openContainer(ctx context.Context) (*di.Container, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.StorageBackend = storageBackend
	cfg.SQLitePath = sqlitePath
	cfg.DispatchMode = config.DispatchInProcess
	cfg.LogLevel = logLevel
	cfg.EnableMetrics = false
	if promptsFile != "" {
		cfg.PromptsFile = promptsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	return container, cleanup, nil
}
