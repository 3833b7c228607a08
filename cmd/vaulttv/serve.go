package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/playback"
	"github.com/voyagen/vaulttv/internal/server"
	"github.com/voyagen/vaulttv/internal/service"
)

// guideRetention is how long finished programmes are kept.
const guideRetention = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, background sync workers and the event stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hub := events.NewHub()
		a, err := bootstrap(ctx, hub)
		if err != nil {
			return err
		}
		defer a.close()

		go hub.Run(ctx)

		jobs := service.NewJobs(a.coord, a.jobQueue(), a.cfg.ParseWorkers)
		go jobs.Run(ctx)
		go jobs.Refresh(ctx, a.cfg.RefreshInterval, service.ModeDelta)
		go cleanGuide(ctx, a)

		sessions := playback.NewManager(a.store, playback.EventLoader{Publisher: hub})
		defer sessions.CloseAll()

		srv := server.New(a.cfg, server.Deps{
			Store:    a.store,
			Sync:     a.coord,
			Jobs:     jobs,
			Playback: sessions,
			Events:   hub,
		})
		return srv.ListenAndServe(ctx)
	},
}

// cleanGuide drops expired programmes once an hour.
func cleanGuide(ctx context.Context, a *app) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.store.CleanExpiredPrograms(ctx, time.Now().Add(-guideRetention))
			if err != nil {
				logrus.WithError(err).Warn("guide cleanup failed")
				continue
			}
			if n > 0 {
				logrus.WithField("removed", n).Debug("expired programmes removed")
			}
		}
	}
}
