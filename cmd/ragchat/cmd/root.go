package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// cfgPath is the YAML config file; empty means ./config.yaml or the user config.
	cfgPath string
	// logLevel overrides the configured log level when set.
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Question answering over a markdown book",
	Long: `ragchat indexes a directory of markdown chapters into a vector store and
answers questions grounded in the retrieved passages or in a selected excerpt.

Examples:
  # Index the book, resuming where the last run stopped
  ragchat ingest ./docs

  # Serve the chat API
  ragchat serve

  # Ask questions in the terminal
  ragchat chat`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/ragchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}
