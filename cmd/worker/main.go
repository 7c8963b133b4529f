// SPDX-License-Identifier: MIT

// Command worker runs the behavior-analysis worker: it serves the push
// endpoint and processes storage-finalize notifications through the
// analysis pipeline.
package main

import (
	"context"
	"os"

	"github.com/clinirec/analysis-worker/internal/analyzer"
	"github.com/clinirec/analysis-worker/internal/app"
	"github.com/clinirec/analysis-worker/internal/behavior"
	"github.com/clinirec/analysis-worker/internal/config"
	"github.com/clinirec/analysis-worker/internal/genai"
	"github.com/clinirec/analysis-worker/internal/httpapi"
	"github.com/clinirec/analysis-worker/internal/log"
	"github.com/clinirec/analysis-worker/internal/media"
	"github.com/clinirec/analysis-worker/internal/pacer"
	"github.com/clinirec/analysis-worker/internal/policy"
	"github.com/clinirec/analysis-worker/internal/session"
	"github.com/clinirec/analysis-worker/internal/storage"
	"github.com/clinirec/analysis-worker/internal/telemetry"
	"github.com/clinirec/analysis-worker/internal/worker"
)

const version = "1.0.0"

func main() {
	if err := run(context.Background()); err != nil {
		logger := log.Base()
		logger.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: cfg.LogService})
	logger := log.Base()
	cfg.LogSnapshot(logger)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	blob, err := storage.NewGCS(ctx, cfg.Bucket)
	if err != nil {
		return err
	}
	defer func() { _ = blob.Close() }()

	backend, err := genai.NewGemini(cfg.GenAIAPIKey, genai.WithBaseURL(cfg.GenAIBaseURL))
	if err != nil {
		return err
	}

	gate := pacer.New(cfg.GlobalRateLimitPause())
	runner := policy.New(gate, policy.Options{
		CallTimeout:         cfg.CallTimeout(),
		RetryInterval:       cfg.TransientRetryInterval(),
		MaxTransientRetries: cfg.MaxTransientRetries,
	})

	vocab, err := behavior.Load()
	if err != nil {
		return err
	}

	pipeline := analyzer.New(analyzer.Config{
		Model:                    cfg.Model,
		Temperature:              cfg.Temperature,
		Concurrency:              cfg.Concurrency,
		ChunkSeconds:             cfg.ChunkSeconds,
		ChunkOverlapSeconds:      cfg.ChunkOverlapSeconds,
		MaxClipFPS:               cfg.MaxClipFPS,
		MergeGapSeconds:          cfg.MergeGapSeconds,
		ValidationMarginSeconds:  cfg.ValidationMarginSeconds,
		MinActionDurationSeconds: cfg.MinActionDurationSeconds,
		FileReadyTimeout:         cfg.FileReadyTimeout(),
	}, backend, runner, media.NewTools(cfg.FFmpegPath, cfg.FFprobePath), vocab)

	sessions := session.NewStore(blob, cfg.SessionsPrefix)
	processor := worker.New(worker.Config{
		VideosPrefix:   cfg.VideosPrefix,
		AnalysisPrefix: cfg.AnalysisPrefix,
		Model:          cfg.Model,
		TempDir:        cfg.TempDir,
	}, blob, sessions, pipeline)

	router := httpapi.NewRouter(processor, httpapi.Options{
		Token:          cfg.WorkerAPIToken,
		RateLimitRPM:   cfg.HTTPRateLimitRPM,
		TracingEnabled: cfg.OTELEnabled,
	})

	logger.Info().Str("version", version).Int("port", cfg.Port).Msg("analysis worker starting")
	return app.New(cfg.Port, router).Run(ctx)
}
