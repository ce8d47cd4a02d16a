// Package reporting forwards incidents that need human follow-up to Sentry.
package reporting

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

const flushTimeout = 2 * time.Second

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string
}

// SentryReporter captures errors on a dedicated hub.
type SentryReporter struct {
	hub *sentry.Hub
	log zerolog.Logger
}

// New returns a SentryReporter, or a LogReporter when no DSN is configured.
// The returned flush function must be called before the process exits.
func New(opts Options, log zerolog.Logger) (ports.IncidentReporter, func(), error) {
	log = log.With().Str("component", "incidents").Logger()
	if opts.DSN == "" {
		return &LogReporter{log: log}, func() {}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
	})
	if err != nil {
		return nil, nil, err
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	return &SentryReporter{hub: hub, log: log}, func() { hub.Flush(flushTimeout) }, nil
}

func (r *SentryReporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := r.hub.CaptureException(err); id != nil {
			r.log.Debug().Str("event_id", string(*id)).Msg("incident reported")
		}
	})
}

// LogReporter writes incidents to the log only.
type LogReporter struct {
	log zerolog.Logger
}

func (r *LogReporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	ev := r.log.Error().Err(err)
	for k, v := range tags {
		ev = ev.Str(k, v)
	}
	ev.Msg("incident")
}
