// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the worker.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Job attributes
	JobIDKey       = "job.id"
	JobICDKey      = "job.icd_key"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Session attributes
	SessionKeyKey    = "session.key"
	SessionStatusKey = "session.status"

	// Pipeline attributes
	StageKey        = "pipeline.stage"
	SegmentIndexKey = "pipeline.segment_index"
	SegmentCountKey = "pipeline.segment_count"
	BehaviorsKey    = "pipeline.behavior_count"

	// Inference attributes
	ModelKey       = "inference.model"
	TemperatureKey = "inference.temperature"
	OutcomeKey     = "inference.outcome"

	// Encode attributes
	EncodeKindKey = "encode.kind"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobID, icdKey, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobICDKey, icdKey),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// StageAttributes creates pipeline-stage span attributes.
func StageAttributes(stage string, segments, behaviors int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageKey, stage),
		attribute.Int(SegmentCountKey, segments),
		attribute.Int(BehaviorsKey, behaviors),
	}
}

// InferenceAttributes creates inference-call span attributes.
func InferenceAttributes(model string, temperature float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ModelKey, model),
		attribute.Float64(TemperatureKey, temperature),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
