package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/mobistudy/mobistudy-api/docs"
	"github.com/mobistudy/mobistudy-api/internal/api"
	"github.com/mobistudy/mobistudy-api/internal/api/metrics"
	"github.com/mobistudy/mobistudy-api/internal/infrastructure/http/handlers"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the notification workers and the pending-record sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	e := api.NewRouter(api.RouterDeps{
		Auth:         a.auth,
		Participants: a.participants,
		HealthData:   a.healthData,
		Incidents:    a.incidents,
		JWTSecret:    a.cfg.JWTSecret,
		Readiness: map[string]handlers.Check{
			"mongodb": handlers.MongoCheck(a.db),
			"redis":   handlers.RedisCheck(a.rdb),
		},
	}, a.log)

	g, gctx := errgroup.WithContext(ctx)

	a.dispatcher.Start(gctx)

	g.Go(func() error {
		a.log.Info().Str("port", a.cfg.Port).Msg("http server starting")
		if err := e.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	a.reconciler.OnSweep(func(removed int) {
		metrics.ReconciledRecordsTotal.Add(float64(removed))
	})
	g.Go(func() error {
		return a.reconciler.Run(gctx, a.cfg.Reconcile.Interval)
	})

	g.Go(func() error {
		n, err := a.deletion.ResumePending(gctx)
		if n > 0 {
			metrics.DeletionJobsTotal.WithLabelValues("completed").Add(float64(n))
		}
		if err != nil {
			metrics.DeletionJobsTotal.WithLabelValues("failed").Inc()
			a.log.Error().Err(err).Int("completed", n).Msg("resuming deletion jobs failed")
			return nil
		}
		if n > 0 {
			a.log.Info().Int("completed", n).Msg("resumed interrupted deletion jobs")
		}
		return nil
	})

	return g.Wait()
}
