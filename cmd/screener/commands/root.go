// Package commands defines all Cobra CLI commands for the screener binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/recruitops/screener-go/internal/audit"
	"github.com/recruitops/screener-go/internal/config"
	"github.com/recruitops/screener-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "screener",
		Short: "Screener — a retrieval-augmented resume screening assistant",
		Long: `Screener is an AI assistant for recruiters. It indexes job description
PDFs into a vector store and answers screening questions — paste candidate
resumes into a chat message and it compares them against the most relevant
job descriptions on file.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.screener/config.yaml).
See 'screener --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file in the working directory is optional.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.screener/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewJDCmd(),
		NewVersionCmd(),
	)

	return root
}
