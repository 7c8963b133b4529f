// SPDX-License-Identifier: MIT

package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinirec/analysis-worker/internal/behavior"
	"github.com/clinirec/analysis-worker/internal/genai"
	"github.com/clinirec/analysis-worker/internal/media"
	"github.com/clinirec/analysis-worker/internal/pacer"
	"github.com/clinirec/analysis-worker/internal/policy"
)

type fakeBackend struct {
	mu            sync.Mutex
	uploadState   genai.FileState
	pollsToActive int
	polls         int
	requests      []genai.GenerateRequest
	generate      func(req genai.GenerateRequest) (string, error)
}

func (f *fakeBackend) UploadMedia(_ context.Context, _, _ string) (*genai.MediaFile, error) {
	state := f.uploadState
	if state == "" {
		state = genai.StateActive
	}
	return &genai.MediaFile{Name: "files/f1", URI: "uri://f1", MimeType: "video/mp4", State: state}, nil
}

func (f *fakeBackend) GetMedia(_ context.Context, name string) (*genai.MediaFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	state := genai.StateProcessing
	if f.polls >= f.pollsToActive {
		state = genai.StateActive
	}
	return &genai.MediaFile{Name: name, URI: "uri://f1", State: state}, nil
}

func (f *fakeBackend) Generate(_ context.Context, req genai.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.generate(req)
}

func isDetection(req genai.GenerateRequest) bool {
	return req.Config.ResponseSchema != nil && req.Config.ResponseSchema.Type == "ARRAY"
}

func segStart(req genai.GenerateRequest) float64 {
	return req.Parts[0].Media.Metadata.StartOffsetSec
}

type fakeTools struct {
	mu          sync.Mutex
	info        media.Info
	overlayErr  error
	subtitleErr error
	overlayIn   string
	subtitleIn  string
	srtContent  string
}

func (f *fakeTools) Probe(_ context.Context, _ string) (media.Info, error) {
	return f.info, nil
}

func (f *fakeTools) BurnTimestampOverlay(_ context.Context, input, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlayErr != nil {
		return f.overlayErr
	}
	f.overlayIn = input
	return os.WriteFile(output, []byte("overlaid"), 0o600)
}

func (f *fakeTools) BurnSubtitles(_ context.Context, input, output, srtPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subtitleErr != nil {
		return f.subtitleErr
	}
	f.subtitleIn = input
	srt, err := os.ReadFile(srtPath)
	if err != nil {
		return err
	}
	f.srtContent = string(srt)
	return os.WriteFile(output, []byte("subtitled"), 0o600)
}

func newTestAnalyzer(backend genai.Client, tools MediaTools) *Analyzer {
	gate := pacer.New(time.Millisecond)
	runner := policy.New(gate, policy.Options{
		CallTimeout:         time.Second,
		RetryInterval:       time.Millisecond,
		MaxTransientRetries: 1,
	})
	return New(Config{
		Model:                    "gemini-2.5-flash",
		Temperature:              0.4,
		Concurrency:              5,
		ChunkSeconds:             30,
		ChunkOverlapSeconds:      4,
		MaxClipFPS:               24,
		MergeGapSeconds:          2.5,
		ValidationMarginSeconds:  3,
		MinActionDurationSeconds: 0.8,
		FileReadyTimeout:         time.Second,
		FileReadyPollInterval:    time.Millisecond,
	}, backend, runner, tools, behavior.MustLoad())
}

func sourceVideo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(path, []byte("raw video"), 0o600))
	return path
}

func TestRunHappyPathShortVideo(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			if segStart(req) == 0 {
				return `[{"behavior":"body-rocking","modality":"visual","startSec":5,"endSec":8,"notes":"rocking in chair"}]`, nil
			}
			return `[{"behavior":"body-rocking","modality":"visual","startSec":9,"endSec":12}]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 45, FPS: 30}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	require.Len(t, result.Behaviors, 2)
	assert.Equal(t, 5.0, result.Behaviors[0].StartSec)
	assert.Equal(t, 8.0, result.Behaviors[0].EndSec)
	assert.Equal(t, 35.0, result.Behaviors[1].StartSec)
	assert.Equal(t, 38.0, result.Behaviors[1].EndSec)

	require.NotNil(t, result.DominantCategory)
	assert.Equal(t, "body-rocking", *result.DominantCategory)
	assert.Equal(t, "body-rocking ×2", result.BehaviorSummary)
	assert.Equal(t, 2, result.SegmentCount)
	assert.Zero(t, result.SkippedDetectionUnits)

	for _, p := range []string{result.RawPath, result.ValidatedPath, result.FinalPath, result.VideoPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	var report FinalReport
	data, err := os.ReadFile(result.FinalPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.TotalBehaviors)

	assert.Contains(t, tools.srtContent, "[visual] body-rocking")
	// Subtitles burn onto the analysis input, not the original source.
	assert.Contains(t, tools.subtitleIn, "analysis_input.mp4")
}

func TestRunCapsEffectiveFPS(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 60}}

	dir := t.TempDir()
	_, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	require.NotEmpty(t, backend.requests)
	assert.InDelta(t, 24.0, backend.requests[0].Parts[0].Media.Metadata.FPS, 1e-9)
}

func TestRunMergesFragmentsBeforeValidation(t *testing.T) {
	backend := &fakeBackend{}
	var validations int
	var validationClipStart float64
	var mu sync.Mutex
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[
				{"behavior":"body-rocking","modality":"visual","startSec":10,"endSec":11},
				{"behavior":"body-rocking","modality":"visual","startSec":11.5,"endSec":12.5},
				{"behavior":"body-rocking","modality":"visual","startSec":13,"endSec":14},
				{"behavior":"body-rocking","modality":"visual","startSec":14.5,"endSec":15}
			]`, nil
		}
		mu.Lock()
		validations++
		validationClipStart = segStart(req)
		mu.Unlock()
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	// One merged span, validated once against a ±3 s margin clip.
	assert.Equal(t, 1, validations)
	assert.InDelta(t, 7.0, validationClipStart, 1e-9)
	require.Len(t, result.Behaviors, 1)
	assert.Equal(t, 10.0, result.Behaviors[0].StartSec)
	assert.Equal(t, 15.0, result.Behaviors[0].EndSec)
}

func TestRunValidationRefinesBounds(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[{"behavior":"humming","modality":"audio","startSec":10,"endSec":14}]`, nil
		}
		// Clip covers 7..17; refined bounds are clip-relative.
		return `{"correct":true,"startSec":4,"endSec":6.5}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	require.Len(t, result.Behaviors, 1)
	assert.Equal(t, 11.0, result.Behaviors[0].StartSec)
	assert.Equal(t, 13.5, result.Behaviors[0].EndSec)
}

func TestRunValidationRejectsSpan(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[{"behavior":"humming","modality":"audio","startSec":10,"endSec":14}]`, nil
		}
		return `{"correct":false}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	assert.Empty(t, result.Behaviors)
	assert.Nil(t, result.DominantCategory)

	// Artifacts are still emitted for an empty final set.
	data, err := os.ReadFile(result.FinalPath)
	require.NoError(t, err)
	var report FinalReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Zero(t, report.TotalBehaviors)
}

func TestRunValidationSkipKeepsPreValidationBounds(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[{"behavior":"humming","modality":"audio","startSec":10,"endSec":14}]`, nil
		}
		// Every validation attempt throttles; two strikes skip the unit.
		return "", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	require.Len(t, result.Behaviors, 1)
	assert.Equal(t, 10.0, result.Behaviors[0].StartSec)
	assert.Equal(t, 14.0, result.Behaviors[0].EndSec)
	assert.Equal(t, 1, result.SkippedValidationUnits)

	var validated []ValidatedDetection
	data, err := os.ReadFile(result.ValidatedPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &validated))
	require.Len(t, validated, 1)
	assert.True(t, validated[0].Skipped)
}

func TestRunThrottledSegmentRecoversAfterPause(t *testing.T) {
	backend := &fakeBackend{}
	var mu sync.Mutex
	throttled := false
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			mu.Lock()
			first := !throttled
			throttled = true
			mu.Unlock()
			if first {
				return "", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
			}
			return `[]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)
	assert.Zero(t, result.SkippedDetectionUnits)
}

func TestRunPersistentThrottleSkipsOnlyThatSegment(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			if segStart(req) == 26 {
				return "", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
			}
			return `[{"behavior":"spinning","modality":"visual","startSec":1,"endSec":4}]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 60, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedDetectionUnits)
	assert.NotEmpty(t, result.Behaviors)
}

func TestRunUnparseableDetectionRetriesStrictThenEmpty(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return "no JSON here at all", nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)
	assert.Empty(t, result.Behaviors)

	// Second attempt is the strict re-issue at temperature zero.
	var detections []genai.GenerateRequest
	for _, r := range backend.requests {
		if isDetection(r) {
			detections = append(detections, r)
		}
	}
	require.Len(t, detections, 2)
	assert.Zero(t, detections[1].Config.Temperature)
}

func TestRunOverlayFailureFallsBackToOriginal(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{
		info:       media.Info{DurationSec: 20, FPS: 25},
		overlayErr: errors.New("drawtext filter missing"),
	}

	dir := t.TempDir()
	src := sourceVideo(t, dir)
	result, err := newTestAnalyzer(backend, tools).Run(context.Background(), src, dir)
	require.NoError(t, err)
	assert.Equal(t, src, tools.subtitleIn)
	assert.NotNil(t, result)
}

func TestRunSubtitleBurnFailureIsFatal(t *testing.T) {
	backend := &fakeBackend{}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{
		info:        media.Info{DurationSec: 20, FPS: 25},
		subtitleErr: errors.New("libass unavailable"),
	}

	dir := t.TempDir()
	_, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libass unavailable")
}

func TestRunWaitsForMediaActive(t *testing.T) {
	backend := &fakeBackend{uploadState: genai.StateProcessing, pollsToActive: 3}
	backend.generate = func(req genai.GenerateRequest) (string, error) {
		if isDetection(req) {
			return `[]`, nil
		}
		return `{"correct":true}`, nil
	}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	dir := t.TempDir()
	_, err := newTestAnalyzer(backend, tools).Run(context.Background(), sourceVideo(t, dir), dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, backend.polls, 3)
}

func TestRunMediaNeverActiveIsFatal(t *testing.T) {
	backend := &fakeBackend{uploadState: genai.StateProcessing, pollsToActive: 1 << 30}
	tools := &fakeTools{info: media.Info{DurationSec: 20, FPS: 25}}

	a := newTestAnalyzer(backend, tools)
	a.cfg.FileReadyTimeout = 10 * time.Millisecond

	dir := t.TempDir()
	_, err := a.Run(context.Background(), sourceVideo(t, dir), dir)
	require.ErrorIs(t, err, ErrNotActive)
}
