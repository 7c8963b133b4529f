// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponentAnnotates(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent("pacer").Output(&buf)
	l.Info().Msg("annotated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry[FieldComponent] != "pacer" {
		t.Errorf("component = %v, want pacer", entry[FieldComponent])
	}
	if entry["service"] != "analysis-worker" {
		t.Errorf("service = %v, want analysis-worker", entry["service"])
	}
}

func TestDeriveBuildsChildLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Derive(func(c *zerolog.Context) {
		*c = c.Str(FieldStage, "detection")
	}).Output(&buf)
	l.Info().Msg("derived")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry[FieldStage] != "detection" {
		t.Errorf("stage = %v, want detection", entry[FieldStage])
	}
}

func TestBaseIsConfigured(t *testing.T) {
	if Base().GetLevel() == zerolog.Disabled {
		t.Error("base logger must not be disabled")
	}
}
