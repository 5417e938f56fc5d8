package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragchat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and ingestion HTTP API",
	Long: `Serve /chat, /chat-with-selection, /ingest, /healthz and /metrics until
interrupted. The listen address comes from server.host and server.port
(APP_HOST, APP_PORT).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, needs{embedder: true, generator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	h := &server.Handler{
		Service:        a.svc,
		Metrics:        a.metrics.Handler(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Log:            a.log.WithName("http"),
	}
	return server.Run(ctx, a.cfg.ServerAddress(), h.Routes(), a.log)
}

