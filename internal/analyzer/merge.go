// SPDX-License-Identifier: MIT

package analyzer

import (
	"sort"
	"strings"

	"github.com/clinirec/analysis-worker/internal/behavior"
)

type mergeKey struct {
	behavior string
	modality behavior.Modality
}

// Merge coalesces spans of the same (behavior, modality) whose gap does not
// exceed gap seconds. Input order breaks start-time ties, so the pass is
// deterministic and idempotent. Different behaviors or modalities never
// merge.
func Merge(items []Detection, gap float64) []Detection {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]Detection, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSec < sorted[j].StartSec
	})

	out := make([]Detection, 0, len(sorted))
	open := make(map[mergeKey]int, len(sorted))

	for _, item := range sorted {
		k := mergeKey{behavior: item.Behavior, modality: item.Modality}
		if idx, ok := open[k]; ok && item.StartSec <= out[idx].EndSec+gap {
			if item.EndSec > out[idx].EndSec {
				out[idx].EndSec = item.EndSec
			}
			out[idx].Notes = appendNotes(out[idx].Notes, item.Notes)
			continue
		}
		out = append(out, item)
		open[k] = len(out) - 1
	}
	return out
}

// appendNotes joins b onto a unless one already contains the other.
func appendNotes(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case b == "" || strings.Contains(a, b):
		return a
	case a == "" || strings.Contains(b, a):
		return b
	default:
		return a + "; " + b
	}
}
