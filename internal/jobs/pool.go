// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/ManuGH/videocat/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler executes one job. Returning an error marks the job failed; jobs
// are never retried by the pool.
type Handler func(ctx context.Context, job Job) error

// PoolConfig defines configuration for the Pool.
type PoolConfig struct {
	Workers  int
	Timeouts map[Kind]time.Duration // optional upper bound per job kind
	Logger   zerolog.Logger
	Tracer   trace.Tracer
}

// Pool runs jobs from a Queue on a fixed number of workers. Two jobs of the
// same kind and video never run concurrently; a worker that dequeues such a
// job hands it to the worker already running that key and moves on.
type Pool struct {
	queue    Queue
	handlers map[Kind]Handler
	workers  int
	timeouts map[Kind]time.Duration
	locks    *handoff
	logger   zerolog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	running bool
}

func NewPool(q Queue, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("github.com/ManuGH/videocat/internal/jobs")
	}
	return &Pool{
		queue:    q,
		handlers: make(map[Kind]Handler),
		workers:  cfg.Workers,
		timeouts: cfg.Timeouts,
		locks:    newHandoff(),
		logger:   cfg.Logger,
		tracer:   tracer,
	}
}

// Handle registers h for kind. It must be called before Run.
func (p *Pool) Handle(kind Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		panic("jobs: Handle called after Run")
	}
	p.handlers[kind] = h
}

// Run starts the workers and blocks until ctx is cancelled or the queue is
// closed, and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("jobs: pool already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info().Int("workers", p.workers).Msg("job workers started")

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Info().Msg("job workers stopped")
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker", id).Logger()
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			logger.Error().Err(err).Str(xglog.FieldEvent, "queue.dequeue_failed").Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.dispatch(ctx, d, logger)
	}
}

// dispatch runs d and every delivery handed over for its key meanwhile. When
// the pool stops, deliveries still waiting stay unacked.
func (p *Pool) dispatch(ctx context.Context, d *Delivery, logger zerolog.Logger) {
	key := keyOf(d.Job)
	if !p.locks.claim(key, d) {
		logger.Debug().
			Str(xglog.FieldEvent, "job.deferred").
			Str(xglog.FieldJobID, d.Job.ID).
			Int64(xglog.FieldVideoID, d.Job.VideoID).
			Str(xglog.FieldKind, string(d.Job.Kind)).
			Msg("same video and kind in progress, handed over")
		return
	}
	for d != nil {
		p.process(ctx, d, logger)
		if ctx.Err() != nil {
			if left := p.locks.release(key); len(left) > 0 {
				logger.Warn().Int("jobs", len(left)).
					Str(xglog.FieldEvent, "job.interrupted").
					Msg("deferred jobs left unacked by shutdown")
			}
			return
		}
		d = p.locks.next(key)
	}
}

func (p *Pool) process(ctx context.Context, d *Delivery, logger zerolog.Logger) {
	job := d.Job

	jobCtx := xglog.ContextWithJobID(ctx, job.ID)
	jobCtx = xglog.ContextWithVideoID(jobCtx, job.VideoID)
	if t := p.timeouts[job.Kind]; t > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, t)
		defer cancel()
	}
	jobCtx, span := p.tracer.Start(jobCtx, "job."+string(job.Kind),
		trace.WithAttributes(telemetry.JobAttributes(job.ID, string(job.Kind), job.VideoID)...))
	defer span.End()

	jl := xglog.WithContext(jobCtx, logger).With().Str(xglog.FieldKind, string(job.Kind)).Logger()
	jl.Info().Str(xglog.FieldEvent, "job.started").Msg("job started")

	start := time.Now()
	err := p.run(jobCtx, job)
	took := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errPanic):
		outcome = "panic"
	case errors.Is(err, ErrUnknownKind):
		outcome = "unknown_kind"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		outcome = "interrupted"
	default:
		outcome = "failed"
	}
	metrics.ObserveJob(string(job.Kind), outcome, took)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(outcome)...)
		span.SetStatus(codes.Error, outcome)
	}

	if outcome == "interrupted" {
		// left reserved; a durable queue hands it out again after restart
		jl.Warn().Err(err).Str(xglog.FieldEvent, "job.interrupted").Msg("job interrupted by shutdown")
		return
	}

	if err != nil {
		jl.Error().Err(err).
			Str(xglog.FieldEvent, "job.failed").
			Str(xglog.FieldReason, outcome).
			Dur("took", took).
			Msg("job failed")
	} else {
		jl.Info().Str(xglog.FieldEvent, "job.done").Dur("took", took).Msg("job done")
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Ack(ackCtx); err != nil {
		jl.Error().Err(err).Str(xglog.FieldEvent, "job.ack_failed").Msg("ack failed")
	}
}

var errPanic = errors.New("handler panic")

func (p *Pool) run(ctx context.Context, job Job) (err error) {
	h, ok := p.handlers[job.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(job.Kind))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return h(ctx, job)
}
