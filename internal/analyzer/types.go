// SPDX-License-Identifier: MIT

// Package analyzer drives the multi-stage behavior-analysis pipeline:
// segmentation, concurrent detection, merging, concurrent validation, and
// artifact emission.
package analyzer

import (
	"math"

	"github.com/clinirec/analysis-worker/internal/behavior"
)

// Detection is one behavior span on the source video. Times are absolute
// seconds after stage-one normalization.
type Detection struct {
	Behavior string            `json:"behavior"`
	Modality behavior.Modality `json:"modality"`
	StartSec float64           `json:"startSec"`
	EndSec   float64           `json:"endSec"`
	Notes    string            `json:"notes,omitempty"`
}

// ValidatedDetection is a detection after the validation stage. Skipped
// items kept their pre-validation bounds because the validator's policy
// budget ran out, not because the model confirmed them.
type ValidatedDetection struct {
	Detection
	Skipped bool `json:"skipped,omitempty"`
}

// Segment is one fixed-length analysis window of the source video.
type Segment struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// round3 normalizes a time to millisecond precision for emitted artifacts.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
