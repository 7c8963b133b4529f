// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeGCS(t *testing.T) *GCS {
	t.Helper()
	server := fakestorage.NewServer([]fakestorage.Object{
		{
			ObjectAttrs: fakestorage.ObjectAttrs{
				BucketName:  "clinirec-test",
				Name:        "child-videos/F84.0/1700000000-session.mp4",
				ContentType: "video/mp4",
			},
			Content: []byte("fake-video-bytes"),
		},
	})
	t.Cleanup(server.Stop)
	return NewGCSWithClient(server.Client(), "clinirec-test")
}

func TestGCSExists(t *testing.T) {
	g := newFakeGCS(t)
	ctx := context.Background()

	ok, err := g.Exists(ctx, "child-videos/F84.0/1700000000-session.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Exists(ctx, "child-videos/F84.0/absent.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGCSDownloadToFile(t *testing.T) {
	g := newFakeGCS(t)
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "nested", "video.mp4")

	err := g.DownloadToFile(ctx, "child-videos/F84.0/1700000000-session.mp4", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-video-bytes"), data)
}

func TestGCSDownloadMissingObject(t *testing.T) {
	g := newFakeGCS(t)
	err := g.DownloadToFile(context.Background(), "missing.mp4", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrObjectNotExist)
}

func TestGCSUploadFromFile(t *testing.T) {
	g := newFakeGCS(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "artifact.mp4")
	require.NoError(t, os.WriteFile(src, []byte("processed"), 0o600))

	err := g.UploadFromFile(ctx, src, "analysis/F84.0/1700000000/video_with_behaviors.mp4", PutOptions{
		ContentType:  "video/mp4",
		CacheControl: "no-store",
	})
	require.NoError(t, err)

	ok, err := g.Exists(ctx, "analysis/F84.0/1700000000/video_with_behaviors.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGCSJSONRoundTrip(t *testing.T) {
	g := newFakeGCS(t)
	ctx := context.Background()

	in := map[string]any{"status": "Awaiting", "storagePath": "child-videos/F84.0/1700000000-session.mp4"}
	require.NoError(t, g.WriteJSON(ctx, "sessions/F84.0/1700000000.json", in))

	var out map[string]any
	require.NoError(t, g.ReadJSON(ctx, "sessions/F84.0/1700000000.json", &out))
	assert.Equal(t, "Awaiting", out["status"])
}

func TestGCSReadJSONMissing(t *testing.T) {
	g := newFakeGCS(t)
	var out map[string]any
	err := g.ReadJSON(context.Background(), "sessions/none.json", &out)
	assert.ErrorIs(t, err, ErrObjectNotExist)
}

func TestGCSList(t *testing.T) {
	g := newFakeGCS(t)
	ctx := context.Background()

	require.NoError(t, g.WriteJSON(ctx, "sessions/F84.0/1700000000.json", map[string]string{"status": "Awaiting"}))
	require.NoError(t, g.WriteJSON(ctx, "sessions/F84.0/1700000500.json", map[string]string{"status": "Reviewed"}))
	require.NoError(t, g.WriteJSON(ctx, "sessions/F90.1/1700000900.json", map[string]string{"status": "Awaiting"}))

	keys, err := g.List(ctx, "sessions/F84.0/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"sessions/F84.0/1700000000.json",
		"sessions/F84.0/1700000500.json",
	}, keys)
}
