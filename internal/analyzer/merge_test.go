// SPDX-License-Identifier: MIT

package analyzer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinirec/analysis-worker/internal/behavior"
)

func det(label string, mod behavior.Modality, start, end float64) Detection {
	return Detection{Behavior: label, Modality: mod, StartSec: start, EndSec: end}
}

func TestMergeFragmentedDetections(t *testing.T) {
	// Four body-rocking fragments with gaps under 2.5 s collapse to one span.
	in := []Detection{
		det("body-rocking", behavior.Visual, 10, 11),
		det("body-rocking", behavior.Visual, 11.5, 12.5),
		det("body-rocking", behavior.Visual, 13, 14),
		det("body-rocking", behavior.Visual, 14.5, 15),
	}
	out := Merge(in, 2.5)
	require.Len(t, out, 1)
	assert.Equal(t, 10.0, out[0].StartSec)
	assert.Equal(t, 15.0, out[0].EndSec)
}

func TestMergeRespectsGap(t *testing.T) {
	in := []Detection{
		det("humming", behavior.Audio, 0, 2),
		det("humming", behavior.Audio, 4.6, 6), // gap 2.6 > 2.5
	}
	out := Merge(in, 2.5)
	assert.Len(t, out, 2)
}

func TestMergeBoundaryGapMerges(t *testing.T) {
	in := []Detection{
		det("humming", behavior.Audio, 0, 2),
		det("humming", behavior.Audio, 4.5, 6), // gap exactly 2.5
	}
	out := Merge(in, 2.5)
	require.Len(t, out, 1)
	assert.Equal(t, 6.0, out[0].EndSec)
}

func TestMergeTypeSafety(t *testing.T) {
	// Same times, differing behavior or modality: nothing merges.
	in := []Detection{
		det("body-rocking", behavior.Visual, 10, 12),
		det("hand-flapping", behavior.Visual, 10, 12),
		det("humming", behavior.Audio, 10, 12),
	}
	out := Merge(in, 2.5)
	assert.Len(t, out, 3)
	for _, o := range out {
		for _, p := range out {
			if o.Behavior != p.Behavior {
				assert.NotEqual(t, o, p)
			}
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	in := []Detection{
		det("body-rocking", behavior.Visual, 10, 11),
		det("body-rocking", behavior.Visual, 11.5, 12.5),
		det("spinning", behavior.Visual, 3, 5),
		det("humming", behavior.Audio, 2, 4),
		det("humming", behavior.Audio, 8, 9),
	}
	once := Merge(in, 2.5)
	twice := Merge(once, 2.5)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("merge not idempotent (-once +twice):\n%s", diff)
	}
}

func TestMergeContainedSpanDoesNotShrink(t *testing.T) {
	in := []Detection{
		det("spinning", behavior.Visual, 10, 20),
		det("spinning", behavior.Visual, 12, 14),
	}
	out := Merge(in, 2.5)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0].EndSec)
}

func TestMergeUnsortedInput(t *testing.T) {
	in := []Detection{
		det("spinning", behavior.Visual, 14.5, 15),
		det("spinning", behavior.Visual, 10, 11),
		det("spinning", behavior.Visual, 12, 14),
	}
	out := Merge(in, 2.5)
	require.Len(t, out, 1)
	assert.Equal(t, 10.0, out[0].StartSec)
	assert.Equal(t, 15.0, out[0].EndSec)
}

func TestMergeNotesDeduplicated(t *testing.T) {
	in := []Detection{
		{Behavior: "humming", Modality: behavior.Audio, StartSec: 0, EndSec: 1, Notes: "steady humming"},
		{Behavior: "humming", Modality: behavior.Audio, StartSec: 1.5, EndSec: 2, Notes: "humming"},
		{Behavior: "humming", Modality: behavior.Audio, StartSec: 2.5, EndSec: 3, Notes: "louder now"},
	}
	out := Merge(in, 2.5)
	require.Len(t, out, 1)
	assert.Equal(t, "steady humming; louder now", out[0].Notes)
}

func TestMergeEmpty(t *testing.T) {
	assert.Nil(t, Merge(nil, 2.5))
}
