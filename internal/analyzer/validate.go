// SPDX-License-Identifier: MIT

package analyzer

import (
	"context"
	"fmt"

	"github.com/clinirec/analysis-worker/internal/genai"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/metrics"
	"github.com/clinirec/analysis-worker/internal/policy"
	"github.com/clinirec/analysis-worker/internal/pool"
)

type validationResult struct {
	item    ValidatedDetection
	keep    bool
	skipped bool
}

// runValidation confirms every merged span against a margin-expanded clip.
// Confirmed spans come back with refined bounds; rejected spans are
// dropped; skipped spans keep their pre-validation bounds and are treated
// as confirmed so a throttled validator never discards detector output.
func (a *Analyzer) runValidation(ctx context.Context, ref mediaRef, merged []Detection, duration float64) ([]ValidatedDetection, int, error) {
	logger := log.WithComponentFromContext(ctx, "analyzer")

	results, err := pool.Map(ctx, a.cfg.Concurrency, merged, func(ctx context.Context, item Detection, i int) (validationResult, error) {
		r, err := a.validateSpan(ctx, ref, item, i, duration)
		if err != nil {
			return validationResult{}, err
		}
		if r.skipped {
			metrics.IncUnitSkipped("validation")
			logger.Warn().
				Int(log.FieldSegment, i).
				Str(log.FieldStage, "validation").
				Str("behavior", item.Behavior).
				Msg("validation skipped, keeping pre-validation bounds")
		}
		return r, nil
	})
	if err != nil {
		return nil, 0, err
	}

	kept := make([]ValidatedDetection, 0, len(results))
	skipped := 0
	for _, r := range results {
		if r.skipped {
			skipped++
		}
		if r.keep {
			kept = append(kept, r.item)
		}
	}
	return kept, skipped, nil
}

func (a *Analyzer) validateSpan(ctx context.Context, ref mediaRef, item Detection, index int, duration float64) (validationResult, error) {
	clipStart := item.StartSec - a.cfg.ValidationMarginSeconds
	if clipStart < 0 {
		clipStart = 0
	}
	clipEnd := item.EndSec + a.cfg.ValidationMarginSeconds
	if clipEnd > duration {
		clipEnd = duration
	}

	label := fmt.Sprintf("validate[%d]", index)
	prompt := validationPrompt(a.vocab, item, clipStart, clipEnd)
	req := a.validationRequest(ref, clipStart, clipEnd, prompt, a.cfg.Temperature)

	text, err := policy.Do(ctx, a.runner, label, func(ctx context.Context) (string, error) {
		return a.backend.Generate(ctx, req)
	})
	if err != nil {
		if policy.IsSkip(err) {
			return validationResult{item: ValidatedDetection{Detection: item, Skipped: true}, keep: true, skipped: true}, nil
		}
		return validationResult{}, err
	}

	parsed, ok := parseValidationObject(text)
	if !ok {
		strictReq := a.validationRequest(ref, clipStart, clipEnd, prompt+strictJSONReminder, 0)
		text, err = policy.Do(ctx, a.runner, label+"/strict", func(ctx context.Context) (string, error) {
			return a.backend.Generate(ctx, strictReq)
		})
		if err != nil {
			if policy.IsSkip(err) {
				return validationResult{item: ValidatedDetection{Detection: item, Skipped: true}, keep: true, skipped: true}, nil
			}
			return validationResult{}, err
		}
		parsed, ok = parseValidationObject(text)
		if !ok {
			return validationResult{item: ValidatedDetection{Detection: item, Skipped: true}, keep: true, skipped: true}, nil
		}
	}

	if !parsed.Correct {
		return validationResult{}, nil
	}

	refined := a.refineBounds(item, parsed, clipStart, clipEnd, duration)
	return validationResult{item: ValidatedDetection{Detection: refined}, keep: true}, nil
}

// refineBounds maps the validator's clip-relative bounds back to absolute
// time, clamps them into the clip, and re-applies the minimum duration.
// A missing bound keeps the pre-validation value for that side.
func (a *Analyzer) refineBounds(item Detection, v rawValidation, clipStart, clipEnd, duration float64) Detection {
	start := item.StartSec
	end := item.EndSec
	if v.StartSec != nil && isFinite(*v.StartSec) {
		start = clipStart + *v.StartSec
	}
	if v.EndSec != nil && isFinite(*v.EndSec) {
		end = clipStart + *v.EndSec
	}

	if start < clipStart {
		start = clipStart
	}
	if start > clipEnd {
		start = clipEnd
	}
	if end < clipStart {
		end = clipStart
	}
	if end > clipEnd {
		end = clipEnd
	}
	if end < start+0.01 {
		end = start + 0.01
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

	item.StartSec = round3(start)
	item.EndSec = round3(end)
	return item
}

func (a *Analyzer) validationRequest(ref mediaRef, clipStart, clipEnd float64, prompt string, temperature float64) genai.GenerateRequest {
	meta := &genai.VideoMetadata{
		StartOffsetSec: clipStart,
		EndOffsetSec:   clipEnd,
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
			ResponseSchema:   validationSchema,
		},
	}
}
