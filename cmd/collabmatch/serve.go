// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/collabmatch/internal/api"
	"github.com/pdiddy/collabmatch/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background embedding and ranking",
	Long: `Serve starts the HTTP API, the embedding workers and the sweep
scheduler. Sweeps run every match.sweep_interval and after every
pipeline.rank_trigger_burst completed embeddings. Prometheus metrics are
served on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	m := metrics.New()
	e, err := openEngine(ctx, m)
	if err != nil {
		return err
	}
	defer e.Close()

	srv := api.New(e, m, slog.Default())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx, addr, cfg.Server.ShutdownTimeout) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
