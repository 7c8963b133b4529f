// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_worker_jobs_total",
		Help: "Processed storage-finalize jobs by result",
	}, []string{"result"}) // result=completed|failed|ignored

	jobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_worker_job_duration_seconds",
		Help:    "End-to-end job duration from event receipt to session update",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 3600},
	})

	inferenceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_worker_inference_calls_total",
		Help: "Inference attempts by outcome",
	}, []string{"outcome"}) // outcome=success|rate_limited|retryable|fatal

	unitsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_worker_units_skipped_total",
		Help: "Pipeline units dropped after their policy budget by stage",
	}, []string{"stage"}) // stage=detection|validation

	pausesTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_worker_rate_pauses_total",
		Help: "Global rate-limit pauses triggered by throttling responses",
	})

	encodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_worker_encodes_total",
		Help: "ffmpeg encode invocations by kind and outcome",
	}, []string{"kind", "outcome"}) // kind=overlay|subtitles outcome=success|failure

	behaviorsEmitted = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_worker_behaviors_emitted",
		Help:    "Merged behavior count per completed job",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	mediaReadyWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_worker_media_ready_wait_seconds",
		Help:    "Time spent waiting for uploaded media to become ACTIVE",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

func RecordJob(result string, d time.Duration) {
	jobsTotal.WithLabelValues(result).Inc()
	if result != "ignored" {
		jobDurationSeconds.Observe(d.Seconds())
	}
}

func IncInferenceCall(outcome string) { inferenceCallsTotal.WithLabelValues(outcome).Inc() }

func IncUnitSkipped(stage string) { unitsSkippedTotal.WithLabelValues(stage).Inc() }

func IncPauseTriggered() { pausesTriggeredTotal.Inc() }

func RecordEncode(kind, outcome string) { encodesTotal.WithLabelValues(kind, outcome).Inc() }

func ObserveBehaviorsEmitted(n int) { behaviorsEmitted.Observe(float64(n)) }
func ObserveMediaReadyWait(d time.Duration) {
	mediaReadyWaitSeconds.Observe(d.Seconds())
}
