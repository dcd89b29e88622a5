package daemon

import "errors"

var (
	// ErrMissingLogger is returned when logger is not provided
	ErrMissingLogger = errors.New("logger is required")

	// ErrNothingToRun is returned when neither an API handler nor workers are configured.
	ErrNothingToRun = errors.New("neither API handler nor workers configured")

	// ErrWorkerNeedsRedis is returned when the standalone worker is configured
	// with the in-process queue, which it cannot share with the daemon.
	ErrWorkerNeedsRedis = errors.New("standalone worker requires the redis queue driver")

	// ErrMemoryQueueNeedsWorkers is returned when the daemon uses the in-process
	// queue with embedded workers disabled; queued jobs would never run.
	ErrMemoryQueueNeedsWorkers = errors.New("memory queue requires embedded workers")
)
