package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/config"
	"github.com/felixgeelhaar/wayfinder/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the planning API server",
	Long: `Start the wayfinder HTTP server.

Endpoints:
  POST   /plan             - Plan or refine a trip
  GET    /task/{id}        - Poll background media generation
  POST   /itinerary        - Save an itinerary (idempotent per localId)
  GET    /itinerary        - List saved itineraries
  DELETE /itinerary/{id}   - Delete an itinerary
  GET    /openapi.json     - API description
  GET    /metrics          - Prometheus metrics
  GET    /health/live, /health/ready, /health/startup

The server drains connections on SIGTERM or SIGINT.

Example:
  # In-process task workers, SQLite storage
  wayfinder serve

  # JetStream-backed tasks with an embedded NATS server
  wayfinder serve --task-backend nats --embedded-nats

  # Custom address
  wayfinder serve --address :9090`,
	RunE: runServe,
}

var (
	serveAddress         string
	serveTaskBackend     string
	serveEmbeddedNATS    bool
	serveShutdownTimeout time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "address to listen on (overrides server.address)")
	serveCmd.Flags().StringVar(&serveTaskBackend, "task-backend", "", "task backend: memory or nats (overrides tasks.backend)")
	serveCmd.Flags().BoolVar(&serveEmbeddedNATS, "embedded-nats", false, "run an in-process NATS server for the nats backend")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "maximum time to drain connections (overrides server.shutdown_timeout)")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("address") {
		c.Server.Address = serveAddress
	}
	if flags.Changed("task-backend") {
		c.Tasks.Backend = serveTaskBackend
	}
	if flags.Changed("embedded-nats") {
		c.Tasks.EmbeddedNATS = serveEmbeddedNATS
	}
	if flags.Changed("shutdown-timeout") {
		c.Server.ShutdownTimeout = serveShutdownTimeout
	}
	return c.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		return err
	}

	info := version.GetInfo()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("wayfinder "+info.Short()))
	fmt.Fprintf(out, "Listening on:  %s\n", cfg.Server.Address)
	fmt.Fprintf(out, "Task backend:  %s\n", cfg.Tasks.Backend)
	fmt.Fprintf(out, "Storage:       %s\n", cfg.Storage.Driver)
	fmt.Fprintln(out, mutedStyle.Render("Press Ctrl+C to stop the server"))

	serverErr := make(chan error, 1)
	go func() {
		if err := app.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		fmt.Fprintln(out, "\nInitiating graceful shutdown...")

		// The command context is already cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()

		if err := app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fmt.Fprintln(out, "Server stopped gracefully")
		return nil
	}
}
