// SPDX-License-Identifier: MIT

package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinirec/analysis-worker/internal/behavior"
	"github.com/clinirec/analysis-worker/internal/genai"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/media"
	"github.com/clinirec/analysis-worker/internal/metrics"
	"github.com/clinirec/analysis-worker/internal/policy"
	"github.com/clinirec/analysis-worker/internal/telemetry"
)

// Config carries the pipeline tuning options.
type Config struct {
	Model                    string
	Temperature              float64
	Concurrency              int
	ChunkSeconds             float64
	ChunkOverlapSeconds      float64
	MaxClipFPS               int
	MergeGapSeconds          float64
	ValidationMarginSeconds  float64
	MinActionDurationSeconds float64
	FileReadyTimeout         time.Duration
	FileReadyPollInterval    time.Duration
}

// MediaTools is the encoder/prober surface the orchestrator needs.
// Satisfied by *media.Tools; orchestrator tests fake it.
type MediaTools interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	BurnTimestampOverlay(ctx context.Context, input, output string) error
	BurnSubtitles(ctx context.Context, input, output, srtPath string) error
}

// ErrNotActive is returned when uploaded media never reaches ACTIVE within
// the readiness deadline.
var ErrNotActive = fmt.Errorf("analyzer: uploaded media did not become active")

// Result summarizes a completed pipeline run. All artifact paths are local
// to the job workspace.
type Result struct {
	DurationSec            float64
	FPS                    float64
	SegmentCount           int
	DominantCategory       *string
	BehaviorSummary        string
	Behaviors              []Detection
	SkippedDetectionUnits  int
	SkippedValidationUnits int

	RawPath       string
	ValidatedPath string
	FinalPath     string
	VideoPath     string
}

// Analyzer runs the analysis pipeline for one video.
type Analyzer struct {
	cfg     Config
	backend genai.Client
	runner  *policy.Runner
	tools   MediaTools
	vocab   *behavior.Vocabulary
}

// New wires an Analyzer. The runner must share its pause gate with every
// other in-flight stage of the same process.
func New(cfg Config, backend genai.Client, runner *policy.Runner, tools MediaTools, vocab *behavior.Vocabulary) *Analyzer {
	if cfg.FileReadyPollInterval <= 0 {
		cfg.FileReadyPollInterval = time.Second
	}
	return &Analyzer{cfg: cfg, backend: backend, runner: runner, tools: tools, vocab: vocab}
}

// Run executes the full pipeline against inputPath, emitting artifacts into
// workDir. Unit-level failures degrade; only job-fatal conditions (media
// not ready, probe failure, subtitle burn failure, artifact write failure)
// return an error.
func (a *Analyzer) Run(ctx context.Context, inputPath, workDir string) (*Result, error) {
	logger := log.WithComponentFromContext(ctx, "analyzer")
	ctx, span := telemetry.Tracer("analyzer").Start(ctx, "analyzer.run",
		trace.WithAttributes(attribute.String(telemetry.ModelKey, a.cfg.Model)))
	defer span.End()

	// Stage 0: timestamp overlay. Non-fatal; the model just loses its
	// wall-clock hints.
	analysisInput := filepath.Join(workDir, "analysis_input.mp4")
	if err := a.tools.BurnTimestampOverlay(ctx, inputPath, analysisInput); err != nil {
		logger.Warn().Err(err).Msg("timestamp overlay failed, analyzing original video")
		analysisInput = inputPath
	}

	file, err := a.backend.UploadMedia(ctx, analysisInput, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("analyzer: upload media: %w", err)
	}
	file, err = a.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	info, err := a.tools.Probe(ctx, analysisInput)
	if err != nil {
		return nil, fmt.Errorf("analyzer: probe: %w", err)
	}

	fps := info.FPS
	if fps > float64(a.cfg.MaxClipFPS) {
		fps = float64(a.cfg.MaxClipFPS)
	}
	ref := mediaRef{uri: file.URI, mimeType: "video/mp4", fps: fps}

	segments := PlanSegments(info.DurationSec, a.cfg.ChunkSeconds, a.cfg.ChunkOverlapSeconds)
	span.SetAttributes(attribute.Int(telemetry.SegmentCountKey, len(segments)))
	logger.Info().
		Float64("duration_sec", info.DurationSec).
		Float64("fps", info.FPS).
		Int("segments", len(segments)).
		Msg("pipeline planned")

	raw, skippedDet, err := a.runDetection(ctx, ref, segments, info.DurationSec)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = []Detection{}
	}
	rawPath := filepath.Join(workDir, RawArtifactName)
	if err := writeJSONArtifact(rawPath, raw); err != nil {
		return nil, err
	}

	merged := Merge(raw, a.cfg.MergeGapSeconds)
	logger.Info().
		Int("raw", len(raw)).
		Int("merged", len(merged)).
		Int("skipped_segments", skippedDet).
		Msg("detection complete")

	validated, skippedVal, err := a.runValidation(ctx, ref, merged, info.DurationSec)
	if err != nil {
		return nil, err
	}
	if validated == nil {
		validated = []ValidatedDetection{}
	}
	validatedPath := filepath.Join(workDir, ValidatedArtifactName)
	if err := writeJSONArtifact(validatedPath, validated); err != nil {
		return nil, err
	}

	confirmed := make([]Detection, 0, len(validated))
	for _, v := range validated {
		confirmed = append(confirmed, v.Detection)
	}
	final := Merge(confirmed, a.cfg.MergeGapSeconds)
	if final == nil {
		final = []Detection{}
	}
	for i := range final {
		final[i].StartSec = round3(final[i].StartSec)
		final[i].EndSec = round3(final[i].EndSec)
	}

	dominant := dominantCategory(final)
	report := FinalReport{
		GeneratedAt:      time.Now().UTC(),
		DominantCategory: dominant,
		TotalBehaviors:   len(final),
		Behaviors:        final,
	}
	finalPath := filepath.Join(workDir, FinalArtifactName)
	if err := writeJSONArtifact(finalPath, report); err != nil {
		return nil, err
	}

	srtPath := filepath.Join(workDir, srtFileName)
	if err := media.WriteSRT(srtPath, subtitleCues(final)); err != nil {
		return nil, err
	}
	videoPath := filepath.Join(workDir, VideoArtifactName)
	if err := a.tools.BurnSubtitles(ctx, analysisInput, videoPath, srtPath); err != nil {
		return nil, err
	}

	metrics.ObserveBehaviorsEmitted(len(final))
	span.SetAttributes(attribute.Int(telemetry.BehaviorsKey, len(final)))
	logger.Info().
		Int("validated", len(validated)).
		Int("final", len(final)).
		Int("skipped_validations", skippedVal).
		Msg("pipeline complete")

	return &Result{
		DurationSec:            info.DurationSec,
		FPS:                    info.FPS,
		SegmentCount:           len(segments),
		DominantCategory:       dominant,
		BehaviorSummary:        behaviorSummary(final),
		Behaviors:              final,
		SkippedDetectionUnits:  skippedDet,
		SkippedValidationUnits: skippedVal,
		RawPath:                rawPath,
		ValidatedPath:          validatedPath,
		FinalPath:              finalPath,
		VideoPath:              videoPath,
	}, nil
}

// waitActive polls the uploaded media handle until it reports ACTIVE,
// bounded by the readiness deadline. A FAILED state or an expired deadline
// is job-fatal.
func (a *Analyzer) waitActive(ctx context.Context, file *genai.MediaFile) (*genai.MediaFile, error) {
	started := time.Now()
	deadline := started.Add(a.cfg.FileReadyTimeout)

	for {
		if file.State == genai.StateActive {
			metrics.ObserveMediaReadyWait(time.Since(started))
			return file, nil
		}
		if file.State == genai.StateFailed {
			return nil, fmt.Errorf("analyzer: media %s failed backend processing", file.Name)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrNotActive, file.Name, a.cfg.FileReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.FileReadyPollInterval):
		}

		next, err := a.backend.GetMedia(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("analyzer: poll media %s: %w", file.Name, err)
		}
		file = next
	}
}
