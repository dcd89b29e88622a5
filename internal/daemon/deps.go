package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves the public API; nil in worker mode.
	APIHandler http.Handler

	// MetricsAddr and MetricsHandler enable the Prometheus listener.
	MetricsAddr    string
	MetricsHandler http.Handler

	// Workers runs the job pool until its context is cancelled; nil when
	// jobs are processed elsewhere.
	Workers func(ctx context.Context) error

	// Background tasks run alongside the servers until shutdown begins.
	Background []func(ctx context.Context) error
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil && d.Workers == nil {
		return ErrNothingToRun
	}
	return nil
}
