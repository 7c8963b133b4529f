// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Blob used by tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]PutOptions
	writes  map[string]int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		meta:    make(map[string]PutOptions),
		writes:  make(map[string]int),
	}
}

// Seed stores raw bytes at key without counting as a worker write.
func (m *Memory) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// SeedJSON stores v encoded as JSON at key without counting as a worker write.
func (m *Memory) SeedJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Seed(key, data)
	return nil
}

// Bytes returns a copy of the object at key.
func (m *Memory) Bytes(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Options returns the metadata recorded for the last upload of key.
func (m *Memory) Options(key string) (PutOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts, ok := m.meta[key]
	return opts, ok
}

// WriteCount reports how many times key has been written.
func (m *Memory) WriteCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// TotalWrites reports the number of writes across all keys.
func (m *Memory) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.writes {
		total += n
	}
	return total
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) DownloadToFile(_ context.Context, key, destPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("storage: download %s: %w", key, ErrObjectNotExist)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o600)
}

func (m *Memory) UploadFromFile(_ context.Context, srcPath, key string, opts PutOptions) error {
	data, err := os.ReadFile(srcPath) // #nosec G304 -- test fixture path
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", srcPath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.meta[key] = opts
	m.writes[key]++
	return nil
}

func (m *Memory) ReadJSON(_ context.Context, key string, v any) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("storage: read %s: %w", key, ErrObjectNotExist)
	}
	return json.Unmarshal(data, v)
}

func (m *Memory) WriteJSON(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.meta[key] = PutOptions{ContentType: "application/json", CacheControl: "no-store"}
	m.writes[key]++
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
