// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalEnv() map[string]string {
	return map[string]string{
		"BUCKET":        "clinirec-media",
		"GENAI_API_KEY": "test-key",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(minimalEnv()))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "child-videos", cfg.VideosPrefix)
	assert.Equal(t, "sessions", cfg.SessionsPrefix)
	assert.Equal(t, "analysis", cfg.AnalysisPrefix)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.InDelta(t, 0.4, cfg.Temperature, 1e-9)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.InDelta(t, 30.0, cfg.ChunkSeconds, 1e-9)
	assert.InDelta(t, 4.0, cfg.ChunkOverlapSeconds, 1e-9)
	assert.Equal(t, 24, cfg.MaxClipFPS)
	assert.InDelta(t, 2.5, cfg.MergeGapSeconds, 1e-9)
	assert.InDelta(t, 3.0, cfg.ValidationMarginSeconds, 1e-9)
	assert.InDelta(t, 0.8, cfg.MinActionDurationSeconds, 1e-9)
	assert.Equal(t, 3, cfg.MaxTransientRetries)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
}

func TestLoadDurations(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(minimalEnv()))
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.CallTimeout())
	assert.Equal(t, 60*time.Second, cfg.TransientRetryInterval())
	assert.Equal(t, 5*time.Minute, cfg.GlobalRateLimitPause())
	assert.Equal(t, 5*time.Minute, cfg.FileReadyTimeout())
	assert.InDelta(t, 26.0, cfg.ChunkStepSeconds(), 1e-9)
}

func TestLoadMissingBucket(t *testing.T) {
	env := minimalEnv()
	delete(env, "BUCKET")
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	assert.ErrorIs(t, err, ErrBucketRequired)
}

func TestLoadMissingAPIKey(t *testing.T) {
	env := minimalEnv()
	delete(env, "GENAI_API_KEY")
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestLoadOverrides(t *testing.T) {
	env := minimalEnv()
	env["CONCURRENCY"] = "2"
	env["CHUNK_SECONDS"] = "20"
	env["CHUNK_OVERLAP_SECONDS"] = "5"
	env["CALL_TIMEOUT_MS"] = "30000"
	env["WORKER_API_TOKEN"] = "secret-token"

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.InDelta(t, 15.0, cfg.ChunkStepSeconds(), 1e-9)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())
	assert.Equal(t, "secret-token", cfg.WorkerAPIToken)
}

func TestValidateRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	env := minimalEnv()
	env["CHUNK_SECONDS"] = "4"
	env["CHUNK_OVERLAP_SECONDS"] = "4"
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	assert.Error(t, err)
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	env := minimalEnv()
	env["CONCURRENCY"] = "0"
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	assert.Error(t, err)
}

func TestLogSnapshotMasksSecrets(t *testing.T) {
	env := minimalEnv()
	env["GENAI_API_KEY"] = "super-secret-key"
	env["WORKER_API_TOKEN"] = "bearer-secret"
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg.LogSnapshot(zerolog.New(&buf))

	out := buf.String()
	assert.NotContains(t, out, "super-secret-key")
	assert.NotContains(t, out, "bearer-secret")
	assert.Contains(t, out, "***")
	assert.True(t, strings.Contains(out, "config.loaded"))
}
