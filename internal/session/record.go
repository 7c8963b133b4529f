// SPDX-License-Identifier: MIT

// Package session models persisted session records and their lifecycle.
package session

import (
	"encoding/json"
	"time"
)

// Status is the session lifecycle state persisted in the record.
type Status string

const (
	StatusAwaiting      Status = "Awaiting"
	StatusProcessing    Status = "Processing"
	StatusPendingReview Status = "Pending review"
	StatusReviewed      Status = "Reviewed"
	StatusFailed        Status = "Failed"
)

// IsProcessed reports whether the session already carries a completed
// analysis. Reviewed sessions stay processed; re-deriving artifacts would
// destroy manual review state.
func (s Status) IsProcessed() bool {
	return s == StatusPendingReview || s == StatusReviewed
}

// WorkerInfo summarizes the analysis run for the review surface.
type WorkerInfo struct {
	Model                  string  `json:"model"`
	DurationSec            float64 `json:"durationSec"`
	MergedBehaviorCount    int     `json:"mergedBehaviorCount"`
	FPS                    float64 `json:"fps,omitempty"`
	SegmentCount           int     `json:"segmentCount,omitempty"`
	SkippedDetectionUnits  int     `json:"skippedDetectionUnits,omitempty"`
	SkippedValidationUnits int     `json:"skippedValidationUnits,omitempty"`
}

// Record is a session object persisted as JSON in the blob store. Fields not
// owned by the worker (manual annotations, review notes) are preserved in
// Extra across read-modify-write cycles.
type Record struct {
	StoragePath           string      `json:"storagePath,omitempty"`
	Status                Status      `json:"status"`
	ProcessingStartedAt   *time.Time  `json:"processingStartedAt,omitempty"`
	PendingReviewAt       *time.Time  `json:"pendingReviewAt,omitempty"`
	FailedAt              *time.Time  `json:"failedAt,omitempty"`
	ProcessingError       *string     `json:"processingError,omitempty"`
	AnalysisJSONPath      string      `json:"analysisJsonPath,omitempty"`
	ProcessedVideoPath    string      `json:"processedVideoPath,omitempty"`
	DominantCategory      *string     `json:"dominantCategory,omitempty"`
	BehaviorSummary       string      `json:"behaviorSummary,omitempty"`
	Worker                *WorkerInfo `json:"worker,omitempty"`
	LinkedSourceVideoPath string      `json:"linkedSourceVideoPath,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownRecordKeys lists every JSON key owned by the worker. Keys outside
// this set round-trip through Extra untouched.
var knownRecordKeys = []string{
	"storagePath",
	"status",
	"processingStartedAt",
	"pendingReviewAt",
	"failedAt",
	"processingError",
	"analysisJsonPath",
	"processedVideoPath",
	"dominantCategory",
	"behaviorSummary",
	"worker",
	"linkedSourceVideoPath",
}

type recordAlias Record

func (r *Record) UnmarshalJSON(data []byte) error {
	var a recordAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownRecordKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		all = nil
	}
	a.Extra = all
	*r = Record(a)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(known)+len(r.Extra))
	for k, v := range r.Extra {
		merged[k] = v
	}
	// Worker-owned fields always win over stale external copies.
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}
