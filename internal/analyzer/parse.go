// SPDX-License-Identifier: MIT

package analyzer

import (
	"encoding/json"
	"strings"
)

// rawDetection mirrors one element of the model's detection reply before
// normalization.
type rawDetection struct {
	Behavior string  `json:"behavior"`
	Modality string  `json:"modality"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Notes    string  `json:"notes"`
}

// rawValidation mirrors the model's validation reply. Absent bounds keep
// the pre-validation values.
type rawValidation struct {
	Correct  bool     `json:"correct"`
	StartSec *float64 `json:"startSec"`
	EndSec   *float64 `json:"endSec"`
}

// parseDetectionArray tries a strict parse first and then a lenient
// extraction of the outermost JSON array from surrounding prose or fences.
// The second return is false when no array can be recovered.
func parseDetectionArray(text string) ([]rawDetection, bool) {
	cleaned := stripFences(text)

	var items []rawDetection
	if err := json.Unmarshal([]byte(cleaned), &items); err == nil {
		return items, true
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		return nil, false
	}
	return items, true
}

// parseValidationObject applies the same strict-then-lenient ladder to the
// validator's object reply.
func parseValidationObject(text string) (rawValidation, bool) {
	cleaned := stripFences(text)

	var v rawValidation
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, true
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return rawValidation{}, false
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &v); err != nil {
		return rawValidation{}, false
	}
	return v, true
}

// stripFences removes a surrounding markdown code fence when present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
