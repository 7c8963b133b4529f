// SPDX-License-Identifier: MIT

// Package storage abstracts the object store holding session videos,
// session records, and analysis artifacts.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotExist is returned when a requested object is absent.
var ErrObjectNotExist = errors.New("storage: object does not exist")

// PutOptions carry object metadata for uploads.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Blob is the object-store capability set the worker depends on.
type Blob interface {
	// Exists reports whether the object at key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// DownloadToFile copies the object at key to a local file path.
	DownloadToFile(ctx context.Context, key, destPath string) error

	// UploadFromFile streams a local file to the object at key.
	UploadFromFile(ctx context.Context, srcPath, key string, opts PutOptions) error

	// ReadJSON decodes the object at key into v.
	ReadJSON(ctx context.Context, key string, v any) error

	// WriteJSON encodes v as the object at key with no-store cache control.
	WriteJSON(ctx context.Context, key string, v any) error

	// List returns the keys of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
