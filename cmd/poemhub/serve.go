package main

import (
	"github.com/spf13/cobra"

	"poemhub/internal/blob"
	"poemhub/internal/export"
	"poemhub/internal/web"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the poem pages, JSON API and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return err
			}
			stores := a.stores()
			if err := stores.RefreshAll(ctx); err != nil {
				a.logger.Warn("warm-up refresh failed", "error", err)
			}
			server, err := web.New(web.Options{
				Backend:  a.svc,
				Stores:   stores,
				Chat:     a.chatbot(),
				Exporter: export.New(a.svc, store, export.WithLogger(a.logger)),
				Logger:   a.logger,
				Registry: a.registry,
			})
			if err != nil {
				return err
			}
			return server.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
