// Package state persists forwarder progress in small JSON files: the
// per-channel watermark and the per-channel consecutive error count.
//
// Both files hold a flat object keyed by channel id. A missing, empty or
// malformed file is never fatal: it is replaced with "{}" and a warning is
// logged. A file that exists but cannot be read is left alone and writes to
// it fail. Writers are expected to be a single goroutine.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"github.com/smaghili/eitaa-forwarder/pkg/atomicfile"
)

type mapFile[V any] struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// read returns the stored mapping. Missing or malformed content is repaired
// on disk and an empty mapping is returned. Any other read failure is
// returned untouched so callers never overwrite a file they could not read.
func (f *mapFile[V]) read() (map[string]V, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.logger.Info("Creating new state file", zap.String("path", f.path))
		f.repair()
		return make(map[string]V), nil
	}
	if err != nil {
		return nil, apperrors.PersistenceError(err, "read state file "+f.path)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		f.logger.Warn("Empty state file, reinitializing", zap.String("path", f.path))
		f.repair()
		return make(map[string]V), nil
	}

	data, err := decode[V](raw)
	if err != nil {
		f.logger.Warn("Invalid state file, reinitializing",
			zap.String("path", f.path),
			zap.Error(apperrors.PersistenceError(err, "malformed state file")))
		f.repair()
		return make(map[string]V), nil
	}
	return data, nil
}

// peek reads the mapping without ever touching the file. Files are replaced
// atomically, so no lock is taken.
func (f *mapFile[V]) peek() map[string]V {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return make(map[string]V)
	}
	data, err := decode[V](raw)
	if err != nil {
		return make(map[string]V)
	}
	return data
}

func decode[V any](raw []byte) (map[string]V, error) {
	data := make(map[string]V)
	if len(bytes.TrimSpace(raw)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		// literal null
		data = make(map[string]V)
	}
	return data, nil
}

func (f *mapFile[V]) repair() {
	if err := f.write(map[string]V{}); err != nil {
		f.logger.Warn("Failed to reinitialize state file", zap.String("path", f.path), zap.Error(err))
	}
}

func (f *mapFile[V]) write(data map[string]V) error {
	out, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return apperrors.PersistenceError(err, "encode state")
	}
	if err := atomicfile.WriteFile(f.path, out, 0o644); err != nil {
		return apperrors.PersistenceError(err, "write state file "+f.path)
	}
	return nil
}

// update runs a read-modify-write cycle of the whole mapping
func (f *mapFile[V]) update(fn func(map[string]V) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}
	if !fn(data) {
		return nil
	}
	return f.write(data)
}

func (f *mapFile[V]) snapshot() map[string]V {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		f.logger.Warn("Failed to read state file, using empty state",
			zap.String("path", f.path), zap.Error(err))
		return make(map[string]V)
	}
	return data
}
