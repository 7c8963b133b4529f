// SPDX-License-Identifier: MIT

package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/clinirec/analysis-worker/internal/media"
)

// Local artifact file names inside the job workspace. The job processor
// uploads them under the analysis prefix with the same names.
const (
	RawArtifactName       = "behaviors_raw.json"
	ValidatedArtifactName = "behaviors_validated.json"
	FinalArtifactName     = "behaviors_final.json"
	VideoArtifactName     = "video_with_behaviors.mp4"
	srtFileName           = "behaviors.srt"
)

// FinalReport is the envelope of behaviors_final.json.
type FinalReport struct {
	GeneratedAt      time.Time   `json:"generatedAt"`
	DominantCategory *string     `json:"dominantCategory"`
	TotalBehaviors   int         `json:"totalBehaviors"`
	Behaviors        []Detection `json:"behaviors"`
}

// writeJSONArtifact writes v atomically so a crashed job never leaves a
// half-written artifact for the uploader to find.
func writeJSONArtifact(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("analyzer: encode %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("analyzer: write %s: %w", path, err)
	}
	return nil
}

// dominantCategory returns the most frequent behavior label, first-wins on
// ties, or nil for an empty set.
func dominantCategory(items []Detection) *string {
	if len(items) == 0 {
		return nil
	}
	counts := make(map[string]int, len(items))
	for _, it := range items {
		counts[it.Behavior]++
	}
	best := ""
	bestCount := 0
	for _, it := range items {
		if c := counts[it.Behavior]; c > bestCount {
			best = it.Behavior
			bestCount = c
		}
	}
	return &best
}

// behaviorSummary renders "label ×count" entries in descending count order,
// ties broken by first appearance.
func behaviorSummary(items []Detection) string {
	if len(items) == 0 {
		return ""
	}
	counts := make(map[string]int, len(items))
	firstSeen := make(map[string]int, len(items))
	var labels []string
	for i, it := range items {
		if _, ok := counts[it.Behavior]; !ok {
			labels = append(labels, it.Behavior)
			firstSeen[it.Behavior] = i
		}
		counts[it.Behavior]++
	}
	sort.SliceStable(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return firstSeen[labels[i]] < firstSeen[labels[j]]
	})

	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s ×%d", l, counts[l]))
	}
	return strings.Join(parts, ", ")
}

// subtitleCues turns the final behavior set into SRT entries labelled
// "[modality] behavior".
func subtitleCues(items []Detection) []media.Cue {
	cues := make([]media.Cue, 0, len(items))
	for _, it := range items {
		cues = append(cues, media.Cue{
			StartSec: it.StartSec,
			EndSec:   it.EndSec,
			Text:     fmt.Sprintf("[%s] %s", it.Modality, it.Behavior),
		})
	}
	return cues
}
