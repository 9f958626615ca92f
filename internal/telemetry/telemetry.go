// Package telemetry reports unexpected failures to Sentry when a DSN is
// configured. Each Reporter owns its client and hub; nothing touches the
// sentry globals.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	sentry "github.com/getsentry/sentry-go"
)

type Reporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	Breadcrumb(category, message string)
	Flush(timeout time.Duration) bool
}

type Options struct {
	DSN         string
	Environment string
	Release     string
	Logger      *slog.Logger
}

// New returns a Sentry reporter, or a no-op reporter when opts.DSN is empty.
func New(opts Options) (Reporter, error) {
	if opts.DSN == "" {
		return Nop{}, nil
	}
	return newSentry(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
	}, opts.Logger)
}

type Sentry struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

func newSentry(co sentry.ClientOptions, logger *slog.Logger) (*Sentry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := sentry.NewClient(co)
	if err != nil {
		return nil, err
	}
	return &Sentry{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: logger.With(slog.String("component", "telemetry")),
	}, nil
}

func (s *Sentry) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		id := s.hub.CaptureException(err)
		if id != nil {
			s.logger.Debug("reported error", slog.String("event_id", string(*id)))
		}
	})
}

func (s *Sentry) Breadcrumb(category, message string) {
	s.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}

func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureError(context.Context, error, map[string]string) {}
func (Nop) Breadcrumb(string, string)                              {}
func (Nop) Flush(time.Duration) bool                               { return true }
