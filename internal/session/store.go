// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clinirec/analysis-worker/internal/event"
	"github.com/clinirec/analysis-worker/internal/storage"
)

// ErrNotFound is returned when no session record matches a lookup.
var ErrNotFound = errors.New("session: record not found")

// Store reads and writes session records under a key prefix in blob storage.
type Store struct {
	blob   storage.Blob
	prefix string
}

// NewStore returns a Store rooted at prefix (for example "sessions").
func NewStore(blob storage.Blob, prefix string) *Store {
	return &Store{blob: blob, prefix: strings.Trim(prefix, "/")}
}

// Key builds the canonical record key for an (icdKey, uploadEpoch) pair.
func (s *Store) Key(icdKey, uploadEpoch string) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, icdKey, uploadEpoch)
}

// Get loads the record at key.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	var rec Record
	if err := s.blob.ReadJSON(ctx, key, &rec); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return &rec, nil
}

// Put writes the record at key.
func (s *Store) Put(ctx context.Context, key string, rec *Record) error {
	return s.blob.WriteJSON(ctx, key, rec)
}

// Resolve locates the session owning the uploaded object. The canonical key
// derived from the upload epoch is tried first; records created before the
// epoch convention are found by scanning the icdKey folder for a matching
// storagePath.
func (s *Store) Resolve(ctx context.Context, ref event.VideoRef, objectName string) (string, *Record, error) {
	if ref.UploadEpoch != "" {
		key := s.Key(ref.ICDKey, ref.UploadEpoch)
		rec, err := s.Get(ctx, key)
		if err == nil {
			return key, rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", nil, err
		}
	}

	folder := fmt.Sprintf("%s/%s/", s.prefix, ref.ICDKey)
	keys, err := s.blob.List(ctx, folder)
	if err != nil {
		return "", nil, fmt.Errorf("session: scan %s: %w", folder, err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		rec, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return "", nil, err
		}
		if rec.StoragePath == objectName {
			return key, rec, nil
		}
	}
	return "", nil, fmt.Errorf("%w: no record for %s", ErrNotFound, objectName)
}

// Update applies mutate to a freshly read record and writes it back. The
// re-read narrows the window against concurrent external edits; fields the
// worker does not own ride along in Record.Extra.
func (s *Store) Update(ctx context.Context, key string, mutate func(*Record)) (*Record, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	mutate(rec)
	if err := s.Put(ctx, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
