package main

import (
	"errors"
	"os"

	"github.com/ChamsBouzaiene/jewelbot/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stdioMode bool

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Run the engine for an external frontend",
	Long: `Run the engine behind a frontend process.

With --stdio the engine reads NDJSON commands from stdin and writes NDJSON
events to stdout. Logs go to stderr so they never corrupt the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stdioMode {
			return errors.New("engine requires a transport flag (--stdio)")
		}
		ctx := cmd.Context()
		logger.Info("🔌 starting engine stdio bridge")

		env, err := prepareRuntimeEnv(ctx, runtimeOptions{watch: true})
		if err != nil {
			logger.Error("failed to prepare runtime environment", zap.Error(err))
			return err
		}
		defer env.Close()

		// Local transport: one client, no rate limiting.
		dispatcher := server.NewDispatcher(env.Controller, nil, logger)
		return newStdIORunner(os.Stdin, os.Stdout, dispatcher, logger).Run(ctx)
	},
}

func init() {
	engineCmd.Flags().BoolVar(&stdioMode, "stdio", false, "Serve the engine over the NDJSON stdio protocol")
}
