// SPDX-License-Identifier: MIT

package analyzer

// PlanSegments covers [0, duration) with windows of chunk seconds that
// overlap their predecessor by overlap seconds. The final window always
// ends exactly at duration. Overlap exists so an action straddling a cut
// appears intact in at least one window.
func PlanSegments(duration, chunk, overlap float64) []Segment {
	if duration <= 0 || chunk <= 0 || overlap >= chunk {
		return nil
	}
	step := chunk - overlap

	var segments []Segment
	for start := 0.0; start < duration; start += step {
		end := start + chunk
		if end > duration {
			end = duration
		}
		segments = append(segments, Segment{StartSec: round3(start), EndSec: round3(end)})
		if end >= duration {
			break
		}
	}
	return segments
}
