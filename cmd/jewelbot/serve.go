package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChamsBouzaiene/jewelbot/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP and WebSocket",
	Long: `Serve the assistant on JEWELBOT_ADDR (default :8000).

Routes:
  POST /chat             {"query","image","thread_id"} -> {"response","images","thread_id"}
  POST /reset            {"thread_id"} -> {"status":"ok"}
  GET  /sessions/{id}    stored session state
  GET  /healthz
  GET  /ws               NDJSON protocol over WebSocket`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides JEWELBOT_ADDR)")
}

func runServe(ctx context.Context) error {
	env, err := prepareRuntimeEnv(ctx, runtimeOptions{watch: true})
	if err != nil {
		return err
	}
	defer env.Close()

	addr := env.Config.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(env.Controller, server.Options{
		RateLimit: env.Config.RateLimit,
		Logger:    logger,
	})
	defer srv.Close()

	return srv.ListenAndServe(ctx, addr)
}
