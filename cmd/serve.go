package cmd

import (
	"context"
	"fmt"

	"github.com/nibzard/ordo/internal/logging"
	"github.com/nibzard/ordo/internal/metrics"
	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/server"
	"github.com/nibzard/ordo/internal/ui"
)

// serveCommand runs the HTTP API until ctx is cancelled. Requests are
// logged as JSONL under the log directory, one file per run.
func (a *app) serveCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	listen := fs.String("listen", a.cfg.Listen, "Address to listen on")
	pageSize := fs.Int("page-size", a.cfg.PageSize, "Default list page size")
	noAccessLog := fs.Bool("no-access-log", false, "Do not write the JSONL access log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	obs := metrics.New()
	svc, err := a.service(ctx, orderindex.WithObserver(obs))
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithMetrics(obs),
		server.WithPageSize(*pageSize),
	}
	if !*noAccessLog {
		rl, err := logging.NewRunLogger(a.cfg.LogDir, a.storeLocation())
		if err != nil {
			return fmt.Errorf("creating run logger: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		opts = append(opts, server.WithAccessLog(rl.Logger()))
		a.logger.Info("access log", "path", rl.LogPath)
	}

	a.logger.Info("starting server", "store", a.cfg.Store, "location", a.storeLocation(), "listen", *listen)
	return server.New(svc, opts...).Run(ctx, *listen)
}

// tuiCommand launches the terminal board for the configured user.
func (a *app) tuiCommand(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	// Log lines would tear through the alternate screen.
	a.logger = logging.Discard()
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	return ui.RunTUI(ctx, svc, a.cfg.User)
}
