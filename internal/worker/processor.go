// SPDX-License-Identifier: MIT

// Package worker resolves storage-finalize events to sessions, runs the
// analysis pipeline, publishes artifacts, and drives the session state
// machine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/clinirec/analysis-worker/internal/analyzer"
	"github.com/clinirec/analysis-worker/internal/event"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/metrics"
	"github.com/clinirec/analysis-worker/internal/session"
	"github.com/clinirec/analysis-worker/internal/storage"
	"github.com/clinirec/analysis-worker/internal/telemetry"
)

// Ignore reason codes returned to the push subscription.
const (
	ReasonNotFinalize      = "not_finalize"
	ReasonOutOfScope       = "out_of_scope"
	ReasonAlreadyProcessed = "already_processed"
)

// Outcome reports what the processor did with an event.
type Outcome struct {
	Ignored    bool
	Reason     string
	SessionKey string
}

// Pipeline is the analyzer surface the processor drives.
type Pipeline interface {
	Run(ctx context.Context, inputPath, workDir string) (*analyzer.Result, error)
}

// Config carries the processor's path conventions and reporting fields.
type Config struct {
	VideosPrefix   string
	AnalysisPrefix string
	Model          string
	TempDir        string
}

// Processor owns session records for the duration of a job.
type Processor struct {
	cfg      Config
	blob     storage.Blob
	sessions *session.Store
	pipeline Pipeline
}

// New wires a Processor.
func New(cfg Config, blob storage.Blob, sessions *session.Store, pipeline Pipeline) *Processor {
	return &Processor{cfg: cfg, blob: blob, sessions: sessions, pipeline: pipeline}
}

// Process handles one storage notification end to end. Invalid or
// out-of-scope events are acknowledged as ignored; a missing session record
// is an error so the subscription retries; everything after the Processing
// transition marks the session Failed before the error propagates.
func (p *Processor) Process(ctx context.Context, evt event.StorageObject) (*Outcome, error) {
	started := time.Now()
	logger := log.WithComponentFromContext(ctx, "worker")

	if !evt.IsFinalize() {
		logger.Debug().Str("event_type", evt.EventType).Msg("ignoring non-finalize event")
		metrics.RecordJob("ignored", 0)
		return &Outcome{Ignored: true, Reason: ReasonNotFinalize}, nil
	}
	ref, ok := event.ParseVideoPath(evt.Name, p.cfg.VideosPrefix)
	if !ok {
		logger.Debug().Str(log.FieldObject, evt.Name).Msg("ignoring object outside videos prefix")
		metrics.RecordJob("ignored", 0)
		return &Outcome{Ignored: true, Reason: ReasonOutOfScope}, nil
	}

	jobID := ref.ICDKey + "/" + ref.UploadEpoch
	ctx = log.ContextWithJobID(ctx, jobID)
	logger = log.WithComponentFromContext(ctx, "worker")

	ctx, span := telemetry.Tracer("worker").Start(ctx, "worker.process",
		trace.WithAttributes(
			attribute.String(telemetry.JobIDKey, jobID),
			attribute.String(telemetry.JobICDKey, ref.ICDKey),
		))
	defer span.End()

	key, rec, err := p.sessions.Resolve(ctx, ref, evt.Name)
	if err != nil {
		metrics.RecordJob("failed", time.Since(started))
		return nil, fmt.Errorf("worker: resolve session for %s: %w", evt.Name, err)
	}
	span.SetAttributes(attribute.String(telemetry.SessionKeyKey, key))

	if rec.Status.IsProcessed() && rec.AnalysisJSONPath != "" && rec.ProcessedVideoPath != "" {
		logger.Info().
			Str("session", key).
			Str(log.FieldOldState, string(rec.Status)).
			Msg("session already processed, ignoring redelivery")
		metrics.RecordJob("ignored", 0)
		return &Outcome{Ignored: true, Reason: ReasonAlreadyProcessed, SessionKey: key}, nil
	}

	if _, err := p.sessions.Update(ctx, key, func(r *session.Record) {
		r.Status = session.StatusProcessing
		now := time.Now().UTC()
		r.ProcessingStartedAt = &now
		r.ProcessingError = nil
	}); err != nil {
		metrics.RecordJob("failed", time.Since(started))
		return nil, fmt.Errorf("worker: transition to processing: %w", err)
	}
	logger.Info().
		Str("session", key).
		Str(log.FieldNewState, string(session.StatusProcessing)).
		Msg("processing started")

	outcome, err := p.runJob(ctx, evt, ref, key)
	if err != nil {
		p.markFailed(ctx, key, err)
		metrics.RecordJob("failed", time.Since(started))
		span.SetAttributes(attribute.String(telemetry.ErrorTypeKey, fmt.Sprintf("%T", err)))
		return nil, err
	}
	metrics.RecordJob("completed", time.Since(started))
	return outcome, nil
}

// runJob covers the fallible span between the Processing transition and the
// Pending-review commit. The temporary workspace is removed unconditionally.
func (p *Processor) runJob(ctx context.Context, evt event.StorageObject, ref event.VideoRef, key string) (*Outcome, error) {
	logger := log.WithComponentFromContext(ctx, "worker")

	workDir, err := os.MkdirTemp(p.cfg.TempDir, "analysis-job-")
	if err != nil {
		return nil, fmt.Errorf("worker: create workspace: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Warn().Err(rmErr).Str(log.FieldPath, workDir).Msg("workspace cleanup failed")
		}
	}()

	source := filepath.Join(workDir, "source.mp4")
	if err := p.blob.DownloadToFile(ctx, evt.Name, source); err != nil {
		return nil, fmt.Errorf("worker: download source: %w", err)
	}

	result, err := p.pipeline.Run(ctx, source, workDir)
	if err != nil {
		return nil, err
	}

	prefix := p.artifactPrefix(ref, key)
	finalKey := path.Join(prefix, analyzer.FinalArtifactName)
	videoKey := path.Join(prefix, analyzer.VideoArtifactName)

	uploads := []struct {
		local       string
		key         string
		contentType string
	}{
		{result.RawPath, path.Join(prefix, analyzer.RawArtifactName), "application/json"},
		{result.ValidatedPath, path.Join(prefix, analyzer.ValidatedArtifactName), "application/json"},
		{result.FinalPath, finalKey, "application/json"},
		{result.VideoPath, videoKey, "video/mp4"},
	}
	g, uploadCtx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		g.Go(func() error {
			return p.blob.UploadFromFile(uploadCtx, u.local, u.key, storage.PutOptions{
				ContentType:  u.contentType,
				CacheControl: "no-store",
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("worker: upload artifacts: %w", err)
	}

	// Re-read immediately before the commit so concurrent external edits
	// (review notes, manual annotations) survive in the record.
	updated, err := p.sessions.Update(ctx, key, func(r *session.Record) {
		now := time.Now().UTC()
		r.Status = session.StatusPendingReview
		r.PendingReviewAt = &now
		r.ProcessingError = nil
		r.DominantCategory = result.DominantCategory
		r.BehaviorSummary = result.BehaviorSummary
		r.AnalysisJSONPath = finalKey
		r.ProcessedVideoPath = videoKey
		r.LinkedSourceVideoPath = evt.Name
		r.Worker = &session.WorkerInfo{
			Model:                  p.cfg.Model,
			DurationSec:            result.DurationSec,
			MergedBehaviorCount:    len(result.Behaviors),
			FPS:                    result.FPS,
			SegmentCount:           result.SegmentCount,
			SkippedDetectionUnits:  result.SkippedDetectionUnits,
			SkippedValidationUnits: result.SkippedValidationUnits,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("worker: commit session: %w", err)
	}

	logger.Info().
		Str("session", key).
		Str(log.FieldNewState, string(updated.Status)).
		Int("behaviors", len(result.Behaviors)).
		Msg("job completed")
	return &Outcome{SessionKey: key}, nil
}

// markFailed records the failure on the session. Best-effort: the original
// error propagates regardless.
func (p *Processor) markFailed(ctx context.Context, key string, cause error) {
	logger := log.WithComponentFromContext(ctx, "worker")
	msg := cause.Error()
	if _, err := p.sessions.Update(ctx, key, func(r *session.Record) {
		now := time.Now().UTC()
		r.Status = session.StatusFailed
		r.FailedAt = &now
		r.ProcessingError = &msg
	}); err != nil {
		logger.Error().Err(err).Str("session", key).Msg("failed to record job failure")
		return
	}
	logger.Error().Err(cause).
		Str("session", key).
		Str(log.FieldNewState, string(session.StatusFailed)).
		Msg("job failed")
}

// artifactPrefix builds <analysis-prefix>/<icdKey>/<epoch>. The epoch comes
// from the event filename, falling back to the resolved record key for
// sessions located by storage-path scan.
func (p *Processor) artifactPrefix(ref event.VideoRef, key string) string {
	epoch := ref.UploadEpoch
	if epoch == "" {
		epoch = strings.TrimSuffix(path.Base(key), ".json")
	}
	return path.Join(strings.Trim(p.cfg.AnalysisPrefix, "/"), ref.ICDKey, epoch)
}

// IsSessionNotFound reports whether err stems from an unresolvable session.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
