package cmd

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/offline"
	"github.com/felixgeelhaar/wayfinder/internal/progress"
	"github.com/felixgeelhaar/wayfinder/internal/tui"
	"github.com/felixgeelhaar/wayfinder/internal/version"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/client"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// probeTimeout bounds the connectivity check made before offline-aware
// commands.
const probeTimeout = 3 * time.Second

func newClient() *client.Client {
	return client.NewWithConfig(cfg.Client.ServerURL, cfg.Client.APIKey, &client.Config{
		MaxRetries: 2,
		RetryDelay: time.Second,
		Timeout:    cfg.Client.RequestTimeout,
		UserAgent:  version.GetInfo().UserAgent(),
	})
}

// newProber returns a client that fails fast, for health probes.
func newProber() *client.Client {
	return client.NewWithConfig(cfg.Client.ServerURL, cfg.Client.APIKey, &client.Config{
		Timeout:   probeTimeout,
		UserAgent: version.GetInfo().UserAgent(),
	})
}

// openEngine opens the local store. With probe set it checks the server
// once; when the server answers, pending writes start reconciling in the
// background and the returned closer waits for that pass.
func openEngine(ctx context.Context, probe bool) (*offline.Engine, func(), error) {
	store, err := offline.OpenLocal(ctx, cfg.Client.DBPath)
	if err != nil {
		return nil, nil, err
	}
	engine := offline.NewEngine(store, newClient(),
		offline.WithPendingCapacity(cfg.Client.PendingCapacity),
		offline.WithRetention(cfg.Client.MaxRecords, cfg.Client.MaxAge),
		offline.WithReconcileInterval(cfg.Client.ReconcileInterval),
		offline.WithProber(newProber()),
		offline.WithLogger(logger),
	)

	if probe {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		engine.Probe(probeCtx)
		cancel()
	}

	return engine, func() {
		engine.Close()
		_ = store.Close()
	}, nil
}

// unreachable reports whether err is a transport failure rather than an
// answer from the server.
func unreachable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *client.APIError
	return !stderrors.As(err, &apiErr)
}

// waitTask polls a media task until it finishes, showing progress on
// stderr so stdout stays parseable.
func waitTask(cmd *cobra.Command, c *client.Client, id string) (types.TaskView, error) {
	ind := progress.NewIndicator(progress.Config{
		Writer:      cmd.ErrOrStderr(),
		ShowSpinner: tui.IsInteractive(),
	})
	ind.Start()
	view, err := c.WaitTask(cmd.Context(), id, cfg.Client.PollInterval, func(v types.TaskView) {
		logger.Debug("task polled", "task_id", v.ID, "status", v.Status)
		ind.Update(v)
	})
	ind.Stop()
	if err == nil {
		ind.PrintSummary()
	}
	return view, err
}
