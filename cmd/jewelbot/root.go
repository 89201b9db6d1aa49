package main

import (
	"fmt"

	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose bool
	offline bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jewelbot",
	Short: "Conversational jewellery shopping assistant",
	Long: `jewelbot helps shoppers narrow a jewellery catalog down to pieces they like.

It negotiates style, material and price one attribute at a time, shows a small
gallery when the shopper has no preference, and explains which constraint to
relax when nothing in stock matches.

Quick Start:
  jewelbot ingest products.csv     # Load the catalog
  jewelbot index                   # Index the documents directory
  jewelbot serve                   # Serve POST /chat and /ws
  jewelbot chat                    # Talk to the assistant in the terminal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; the environment may already be set.
		_ = godotenv.Load()
		applyProfile()

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the rule-based oracles instead of an LLM provider")

	rootCmd.AddCommand(serveCmd, chatCmd, engineCmd, ingestCmd, indexCmd, profileCmd)
}

// applyProfile exports the saved provider profile; explicit environment
// variables take precedence.
func applyProfile() {
	mgr, err := config.NewManager()
	if err != nil {
		return
	}
	profile, err := mgr.Load()
	if err != nil {
		return
	}
	profile.ApplyToEnv()
}
