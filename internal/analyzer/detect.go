// SPDX-License-Identifier: MIT

package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/clinirec/analysis-worker/internal/behavior"
	"github.com/clinirec/analysis-worker/internal/genai"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/metrics"
	"github.com/clinirec/analysis-worker/internal/policy"
	"github.com/clinirec/analysis-worker/internal/pool"
)

// mediaRef points the stages at the uploaded analysis video.
type mediaRef struct {
	uri      string
	mimeType string
	fps      float64 // effective sampling hint, 0 to omit
}

type detectionResult struct {
	items   []Detection
	skipped bool
}

// runDetection prompts the model for every segment under the bounded pool
// and returns normalized absolute-time detections in segment order. The
// second return counts segments dropped by the policy budget.
func (a *Analyzer) runDetection(ctx context.Context, ref mediaRef, segments []Segment, duration float64) ([]Detection, int, error) {
	logger := log.WithComponentFromContext(ctx, "analyzer")

	results, err := pool.Map(ctx, a.cfg.Concurrency, segments, func(ctx context.Context, seg Segment, i int) (detectionResult, error) {
		items, skipped, err := a.detectSegment(ctx, ref, seg, i, duration)
		if err != nil {
			return detectionResult{}, err
		}
		if skipped {
			metrics.IncUnitSkipped("detection")
			logger.Warn().
				Int(log.FieldSegment, i).
				Str(log.FieldStage, "detection").
				Msg("segment skipped after policy budget")
		}
		return detectionResult{items: items, skipped: skipped}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	var detections []Detection
	skipped := 0
	for _, r := range results {
		detections = append(detections, r.items...)
		if r.skipped {
			skipped++
		}
	}
	return detections, skipped, nil
}

// detectSegment runs the prompt / parse / strict-retry ladder for one
// segment. A skipped segment degrades to an empty result.
func (a *Analyzer) detectSegment(ctx context.Context, ref mediaRef, seg Segment, index int, duration float64) ([]Detection, bool, error) {
	label := fmt.Sprintf("detect[%d]", index)
	prompt := detectionPrompt(a.vocab, seg)

	text, err := policy.Do(ctx, a.runner, label, func(ctx context.Context) (string, error) {
		return a.backend.Generate(ctx, a.detectionRequest(ref, seg, prompt, a.cfg.Temperature))
	})
	if err != nil {
		if policy.IsSkip(err) {
			return nil, true, nil
		}
		return nil, false, err
	}

	raw, ok := parseDetectionArray(text)
	if !ok {
		// One strict re-issue at temperature zero before giving up on the
		// segment.
		text, err = policy.Do(ctx, a.runner, label+"/strict", func(ctx context.Context) (string, error) {
			return a.backend.Generate(ctx, a.detectionRequest(ref, seg, prompt+strictJSONReminder, 0))
		})
		if err != nil {
			if policy.IsSkip(err) {
				return nil, true, nil
			}
			return nil, false, err
		}
		raw, ok = parseDetectionArray(text)
		if !ok {
			return nil, false, nil
		}
	}

	items := make([]Detection, 0, len(raw))
	for _, r := range raw {
		if d, ok := a.normalize(r, seg, duration); ok {
			items = append(items, d)
		}
	}
	return items, false, nil
}

func (a *Analyzer) detectionRequest(ref mediaRef, seg Segment, prompt string, temperature float64) genai.GenerateRequest {
	meta := &genai.VideoMetadata{
		StartOffsetSec: seg.StartSec,
		EndOffsetSec:   seg.EndSec,
		FPS:            ref.fps,
	}
	return genai.GenerateRequest{
		Model: a.cfg.Model,
		Parts: []genai.Part{
			genai.MediaRef(ref.uri, ref.mimeType, meta),
			genai.TextPart(prompt),
		},
		Config: genai.GenerationConfig{
			Temperature:      temperature,
			ResponseMIMEType: "application/json",
			ResponseSchema:   detectionSchema,
		},
	}
}

// normalize shifts a clip-relative raw detection into absolute time and
// applies the vocabulary, modality, bound, and minimum-duration rules. The
// second return is false when the item must be dropped.
func (a *Analyzer) normalize(raw rawDetection, seg Segment, duration float64) (Detection, bool) {
	label := strings.ToLower(strings.TrimSpace(raw.Behavior))
	if !a.vocab.Contains(label) {
		return Detection{}, false
	}

	mod := behavior.Modality(strings.ToLower(strings.TrimSpace(raw.Modality)))
	if mod != behavior.Visual && mod != behavior.Audio {
		inferred, ok := a.vocab.ModalityOf(label)
		if !ok {
			return Detection{}, false
		}
		mod = inferred
	}

	if !isFinite(raw.StartSec) || !isFinite(raw.EndSec) || raw.EndSec < raw.StartSec {
		return Detection{}, false
	}

	start := seg.StartSec + raw.StartSec
	end := seg.StartSec + raw.EndSec
	if start < seg.StartSec {
		start = seg.StartSec
	}
	if start > seg.EndSec {
		return Detection{}, false
	}
	if end > seg.EndSec {
		end = seg.EndSec
	}

	minDur := a.cfg.MinActionDurationSeconds
	if end-start < minDur {
		end = start + minDur
		if end > duration {
			end = duration
			if start > end-minDur {
				start = end - minDur
			}
			if start < 0 {
				start = 0
			}
		}
	}

	return Detection{
		Behavior: label,
		Modality: mod,
		StartSec: round3(start),
		EndSec:   round3(end),
		Notes:    strings.TrimSpace(raw.Notes),
	}, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
