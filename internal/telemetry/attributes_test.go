// SPDX-License-Identifier: MIT

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/pubsub/storage-finalize", "http://worker/pubsub/storage-finalize", 200)

	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if v, ok := findAttr(attrs, HTTPMethodKey); !ok || v.AsString() != "POST" {
		t.Errorf("http.method = %v", v)
	}
	if v, ok := findAttr(attrs, HTTPStatusCodeKey); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code = %v", v)
	}
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("F84.0/1700000000", "F84.0", "completed", 4200)

	if v, ok := findAttr(attrs, JobIDKey); !ok || v.AsString() != "F84.0/1700000000" {
		t.Errorf("job.id = %v", v)
	}
	if v, ok := findAttr(attrs, JobDurationKey); !ok || v.AsInt64() != 4200 {
		t.Errorf("job.duration_ms = %v", v)
	}
}

func TestStageAttributes(t *testing.T) {
	attrs := StageAttributes("detection", 7, 12)

	if v, ok := findAttr(attrs, StageKey); !ok || v.AsString() != "detection" {
		t.Errorf("pipeline.stage = %v", v)
	}
	if v, ok := findAttr(attrs, SegmentCountKey); !ok || v.AsInt64() != 7 {
		t.Errorf("pipeline.segment_count = %v", v)
	}
	if v, ok := findAttr(attrs, BehaviorsKey); !ok || v.AsInt64() != 12 {
		t.Errorf("pipeline.behavior_count = %v", v)
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "encode_failure")

	if v, ok := findAttr(attrs, ErrorKey); !ok || !v.AsBool() {
		t.Errorf("error = %v", v)
	}
	if v, ok := findAttr(attrs, ErrorTypeKey); !ok || v.AsString() != "encode_failure" {
		t.Errorf("error.type = %v", v)
	}
}
