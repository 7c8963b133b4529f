// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS implements Blob against a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCS connects with ambient credentials. The client library honors
// STORAGE_EMULATOR_HOST for local development.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}
	return NewGCSWithClient(client, bucket), nil
}

// NewGCSWithClient wraps an existing client. Tests pass a fake-gcs-server client.
func NewGCSWithClient(client *gcs.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: client.Bucket(bucket)}
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("storage: stat %s: %w", key, err)
}

func (g *GCS) DownloadToFile(ctx context.Context, key, destPath string) error {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("storage: download %s: %w", key, mapNotExist(err))
	}
	defer func() { _ = r.Close() }()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("storage: create dest dir: %w", err)
	}
	f, err := os.Create(destPath) // #nosec G304 -- destPath is a worker-owned temp path
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", destPath, err)
	}
	return nil
}

func (g *GCS) UploadFromFile(ctx context.Context, srcPath, key string, opts PutOptions) error {
	f, err := os.Open(srcPath) // #nosec G304 -- srcPath is a worker-owned temp path
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", srcPath, err)
	}
	defer func() { _ = f.Close() }()

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	// The object is committed on Close; only then is the write durable.
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}

func (g *GCS) ReadJSON(ctx context.Context, key string, v any) error {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", key, mapNotExist(err))
	}
	defer func() { _ = r.Close() }()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

func (g *GCS) WriteJSON(ctx context.Context, key string, v any) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-store"
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func mapNotExist(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrObjectNotExist
	}
	return err
}
