// SPDX-License-Identifier: MIT

package media

import (
	"fmt"
	"os"
	"strings"
)

// Cue is one subtitle entry.
type Cue struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// RenderSRT produces a sequence-numbered SubRip document from cues in
// input order.
func RenderSRT(cues []Cue) string {
	var sb strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(c.StartSec), srtTimestamp(c.EndSec), c.Text)
	}
	return sb.String()
}

// WriteSRT writes the rendered document to path.
func WriteSRT(path string, cues []Cue) error {
	if err := os.WriteFile(path, []byte(RenderSRT(cues)), 0o600); err != nil {
		return fmt.Errorf("media: write srt: %w", err)
	}
	return nil
}

// srtTimestamp renders seconds as "HH:MM:SS,mmm".
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
