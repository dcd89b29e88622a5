// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the videocat pipeline.
// Labels are bounded enums; ids never become label values.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by kind and outcome (ok, failed, panic, timeout).
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_jobs_total",
		Help: "Total number of finished pipeline jobs, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// JobDuration tracks wall time of each job.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videocat_job_duration_seconds",
		Help:    "Duration of pipeline jobs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 14), // 0.5s to ~68m
	}, []string{"kind"})

	// JobsEnqueued counts jobs handed to the queue.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_jobs_enqueued_total",
		Help: "Total number of jobs enqueued, by kind and result.",
	}, []string{"kind", "result"})

	// EncoderInvocations counts external encoder runs per resolution.
	EncoderInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_encoder_invocations_total",
		Help: "Total number of encoder process invocations, by resolution and outcome.",
	}, []string{"resolution", "outcome"})

	// EncoderStalls counts encoder processes killed by the progress watchdog.
	EncoderStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videocat_encoder_stalls_total",
		Help: "Total number of encoder processes killed for lack of progress.",
	})

	// ArtifactsReclaimed counts files and directories removed on catalog delete.
	ArtifactsReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_artifacts_reclaimed_total",
		Help: "Total number of on-disk artifacts removed on delete, by type and result.",
	}, []string{"type", "result"})
)

// ObserveJob records the outcome and duration of one job.
func ObserveJob(kind, outcome string, d time.Duration) {
	JobsTotal.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncEnqueue records an enqueue attempt.
func IncEnqueue(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	JobsEnqueued.WithLabelValues(kind, result).Inc()
}

// IncEncoder records one encoder invocation.
func IncEncoder(resolution string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	EncoderInvocations.WithLabelValues(resolution, outcome).Inc()
}

// IncReclaim records one artifact removal attempt.
func IncReclaim(kind, result string) {
	ArtifactsReclaimed.WithLabelValues(kind, result).Inc()
}
