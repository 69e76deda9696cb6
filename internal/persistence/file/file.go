// Package file implements the default persistence adapter: one JSON
// file per entity under a base directory, written atomically via a
// temp-file-then-rename (spec.md §4.13's default adapter).
package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/guyghost/backtestkit/internal/persistence"
)

// Adapter stores each entity as "<dir>/<escaped-id>.json".
type Adapter struct {
	dir string
}

// New constructs a file Adapter rooted at dir. dir is created on
// WaitForInit.
func New(dir string) *Adapter {
	return &Adapter{dir: dir}
}

var _ persistence.Adapter = (*Adapter)(nil)

func (a *Adapter) WaitForInit(ctx context.Context, initial bool) error {
	return os.MkdirAll(a.dir, 0o755)
}

// escape turns an entity id like "strategyName:symbol" into a
// filesystem-safe file name.
func escape(entityID string) string {
	replacer := strings.NewReplacer(":", "__", "/", "_", "\\", "_")
	return replacer.Replace(entityID) + ".json"
}

func (a *Adapter) path(entityID string) string {
	return filepath.Join(a.dir, escape(entityID))
}

func (a *Adapter) ReadValue(ctx context.Context, entityID string) ([]byte, error) {
	data, err := os.ReadFile(a.path(entityID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func (a *Adapter) HasValue(ctx context.Context, entityID string) (bool, error) {
	_, err := os.Stat(a.path(entityID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WriteValue writes value atomically: to a temp file in the same
// directory, then renamed over the destination, so a crash mid-write
// never leaves a truncated entity file.
func (a *Adapter) WriteValue(ctx context.Context, entityID string, value []byte) error {
	dest := a.path(entityID)
	tmp, err := os.CreateTemp(a.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

func (a *Adapter) RemoveValue(ctx context.Context, entityID string) error {
	err := os.Remove(a.path(entityID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (a *Adapter) Values(ctx context.Context) ([][]byte, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		out = append(out, strings.NewReplacer("__", ":", "_", "/").Replace(name))
	}
	return out, nil
}
