// SPDX-License-Identifier: MIT

// Package media wraps the external ffprobe/ffmpeg invocations the analyzer
// depends on: container probing, the timestamp-overlay encode, and the
// final subtitle burn.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinirec/analysis-worker/internal/log"
)

// Info is the probe result the pipeline consumes.
type Info struct {
	DurationSec float64
	FPS         float64 // 0 when the stream rate is unknown
}

// Tools invokes the external media binaries.
type Tools struct {
	ffmpegPath  string
	ffprobePath string
	logger      zerolog.Logger
}

// NewTools returns a Tools bound to the given binary paths.
func NewTools(ffmpegPath, ffprobePath string) *Tools {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Tools{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      log.WithComponent("media"),
	}
}

// ffprobeOutput mirrors the JSON fields the worker reads.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads duration and video frame rate from the container.
func (t *Tools) Probe(ctx context.Context, path string) (Info, error) {
	out, err := t.run(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("media: probe %s: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Info{}, fmt.Errorf("media: parse probe output for %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return Info{}, fmt.Errorf("media: no usable duration for %s (%q)", path, probe.Format.Duration)
	}

	info := Info{DurationSec: duration}
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if fps := parseFrameRate(s.AvgFrameRate); fps > 0 {
			info.FPS = fps
		} else if fps := parseFrameRate(s.RFrameRate); fps > 0 {
			info.FPS = fps
		}
		break
	}
	return info, nil
}

// parseFrameRate evaluates ffprobe's rational rate strings ("30000/1001",
// "25/1", "24"). Unknown or degenerate rates yield 0.
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
