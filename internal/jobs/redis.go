// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "videocat:queue:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisQueue is a reliable list-based queue. Dequeue atomically moves a job
// onto a processing list; Ack removes it from there. Recover puts
// unacknowledged jobs back after a crash.
type RedisQueue struct {
	client      *redis.Client
	pending     string
	processing  string
	pollTimeout time.Duration
	logger      zerolog.Logger
}

// NewRedisQueue creates a queue named name on client.
func NewRedisQueue(client *redis.Client, name string, logger zerolog.Logger) *RedisQueue {
	if name == "" {
		name = "default"
	}
	return &RedisQueue{
		client:      client,
		pending:     keyPrefix + name,
		processing:  keyPrefix + name + ":processing",
		pollTimeout: time.Second,
		logger:      logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.client.BRPopLPush(ctx, q.pending, q.processing, q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrQueueClosed
			}
			return nil, fmt.Errorf("redis brpoplpush: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error().
				Err(err).
				Str("event", "queue.malformed_job").
				Int("bytes", len(raw)).
				Msg("dropping malformed job")
			_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
			continue
		}

		payload := raw
		return &Delivery{
			Job: job,
			ack: func(ctx context.Context) error {
				return q.client.LRem(ctx, q.processing, 1, payload).Err()
			},
		}, nil
	}
}

// Recover moves every job left on the processing list back to the pending
// list. Call it once at startup before any worker runs.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.pending).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("redis rpoplpush: %w", err)
		}
		n++
	}
	if n > 0 {
		q.logger.Warn().
			Str("event", "queue.recovered").
			Int("count", n).
			Msg("requeued unacknowledged jobs")
	}
	return n, nil
}

// Len reports pending and in-flight job counts.
func (q *RedisQueue) Len(ctx context.Context) (pending, processing int64, err error) {
	pending, err = q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, 0, err
	}
	processing, err = q.client.LLen(ctx, q.processing).Result()
	return pending, processing, err
}
