// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs carries pipeline work from the catalog to the encoder workers.
// Delivery is at-least-once: a job that was dequeued but never acknowledged
// is handed out again after a restart.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind selects the handler of a job.
type Kind string

const (
	KindEncode    Kind = "encode"
	KindThumbnail Kind = "thumbnail"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
	ErrUnknownKind = errors.New("unknown job kind")
)

// Job is one unit of work for one video.
type Job struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	VideoID    int64           `json:"video_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// EncodePayload is the argument of a KindEncode job.
type EncodePayload struct {
	Source string `json:"source"`
}

// ThumbnailPayload is the argument of a KindThumbnail job.
type ThumbnailPayload struct {
	Source   string  `json:"source"`
	RelPath  string  `json:"rel_path"`
	Second   float64 `json:"second"`
	MaxWidth int     `json:"max_width"`
}

// NewJob builds a job with a fresh id and the JSON encoding of payload.
func NewJob(kind Kind, videoID int64, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		VideoID:    videoID,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s: empty payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("job %s: decode payload: %w", j.ID, err)
	}
	return nil
}

// Enqueuer accepts jobs. It is the only queue capability the catalog needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Queue is consumed by the worker pool.
type Queue interface {
	Enqueuer
	// Dequeue blocks until a job is available, ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (*Delivery, error)
}

// Delivery is a dequeued job that stays reserved until Ack is called.
type Delivery struct {
	Job Job
	ack func(ctx context.Context) error
}

// Ack removes the job from the queue for good.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
