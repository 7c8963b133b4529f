// SPDX-License-Identifier: MIT

package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/clinirec/analysis-worker/internal/metrics"
)

// stderrTailBytes bounds the amount of tool output carried into errors.
const stderrTailBytes = 2048

// encodeCommon is shared across every re-encode the worker produces.
var encodeCommon = []string{
	"-c:v", "libx264",
	"-preset", "veryfast",
	"-crf", "23",
	"-c:a", "aac",
	"-b:a", "128k",
	"-movflags", "+faststart",
}

// BurnTimestampOverlay re-encodes input with a HH:MM:SS wall-clock overlay
// at (20,20). The overlaid copy becomes the analysis input so the model
// sees time hints inside the frames. Callers treat failure as non-fatal and
// fall back to the original video.
func (t *Tools) BurnTimestampOverlay(ctx context.Context, input, output string) error {
	args := overlayArgs(input, output)
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		metrics.RecordEncode("overlay", "failure")
		return fmt.Errorf("media: timestamp overlay: %w", err)
	}
	metrics.RecordEncode("overlay", "success")
	return nil
}

// BurnSubtitles re-encodes input with the SRT file rendered into the
// frames. This produces the final output artifact; failure is job-fatal.
func (t *Tools) BurnSubtitles(ctx context.Context, input, output, srtPath string) error {
	args := subtitleArgs(input, output, srtPath)
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		metrics.RecordEncode("subtitles", "failure")
		return fmt.Errorf("media: subtitle burn: %w", err)
	}
	metrics.RecordEncode("subtitles", "success")
	return nil
}

func overlayArgs(input, output string) []string {
	filter := "drawtext=text='%{pts\\:hms}':x=20:y=20:fontsize=24:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=6"
	args := []string{"-y", "-i", input, "-vf", filter}
	args = append(args, encodeCommon...)
	return append(args, output)
}

func subtitleArgs(input, output, srtPath string) []string {
	filter := fmt.Sprintf("subtitles=%s:force_style='FontSize=18,OutlineColour=&H80000000,BorderStyle=3'", escapeFilterPath(srtPath))
	args := []string{"-y", "-i", input, "-vf", filter}
	args = append(args, encodeCommon...)
	return append(args, output)
}

// escapeFilterPath escapes the characters the ffmpeg filter parser treats
// specially when a file path is embedded in a filter string. Colons matter
// on Windows drive letters and in any path containing them.
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	)
	return r.Replace(p)
}

// run executes one external tool invocation, capturing stderr so failures
// carry the tool's own diagnostics.
func (t *Tools) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Debug().
		Str("tool", name).
		Strs("args", args).
		Msg("running media tool")

	if err := cmd.Run(); err != nil {
		tail := stderrTail(stderr.Bytes())
		if tail != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, tail)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
