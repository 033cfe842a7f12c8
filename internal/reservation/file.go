package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/user/sctid/internal/sctid"
	"gopkg.in/yaml.v3"
)

const lockRetryInterval = 50 * time.Millisecond

// stateFile is the on-disk layout shared with reservation definition files.
type stateFile struct {
	Reservations []Range `yaml:"reservations"`
}

// FileRegistry persists ranges to a YAML file guarded by an advisory file
// lock, so several processes sharing a data directory see one registry.
// Changes reload the file under the exclusive lock first. Reads are served
// from memory after a stat; when the file was replaced since the last load
// it is reread under the shared lock.
type FileRegistry struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	loaded os.FileInfo // state file as of the last load; nil when absent
	mem    *MemoryRegistry
}

// OpenFileRegistry loads the registry at path, creating an empty one if the
// file does not exist.
func OpenFileRegistry(ctx context.Context, path string) (*FileRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create reservation dir: %w", err)
	}
	f := &FileRegistry{
		path: path,
		lock: flock.New(path + ".lock"),
		mem:  NewMemoryRegistry(),
	}
	err := f.withLock(ctx, func() error {
		ranges, err := f.load()
		if err != nil {
			return err
		}
		f.mem.replace(ranges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileRegistry) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	locked, err := f.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("lock reservations: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock reservations: %s is held by another process", f.lock.Path())
	}
	defer f.unlock()
	return fn()
}

func (f *FileRegistry) unlock() {
	if err := f.lock.Unlock(); err != nil {
		slog.Debug("failed to release reservation lock", "path", f.lock.Path(), "error", err)
	}
}

// refresh reloads the ranges if another handle rewrote the state file.
// On failure the previous ranges stay in effect.
func (f *FileRegistry) refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.stat()
	if err != nil {
		return err
	}
	if !changed(f.loaded, cur) {
		return nil
	}
	locked, err := f.lock.TryRLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("lock reservations: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock reservations: %s is held by another process", f.lock.Path())
	}
	defer f.unlock()

	ranges, err := f.load()
	if err != nil {
		return err
	}
	f.mem.replace(ranges)
	slog.Debug("reservations reloaded", "path", f.path, "count", len(ranges))
	return nil
}

func (f *FileRegistry) refreshOrWarn() {
	if err := f.refresh(context.Background()); err != nil {
		slog.Warn("serving cached reservations", "path", f.path, "error", err)
	}
}

func (f *FileRegistry) stat() (os.FileInfo, error) {
	fi, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat reservations: %w", err)
	}
	return fi, nil
}

// changed reports whether the state file differs from the one last loaded.
// save always renames a fresh file into place, so a rewrite shows up as a
// different file even within one mtime tick.
func changed(prev, cur os.FileInfo) bool {
	if prev == nil || cur == nil {
		return (prev == nil) != (cur == nil)
	}
	return !os.SameFile(prev, cur) || !prev.ModTime().Equal(cur.ModTime()) || prev.Size() != cur.Size()
}

// load reads the state file. Callers hold f.mu and the file lock.
func (f *FileRegistry) load() ([]Range, error) {
	fi, err := f.stat()
	if err != nil {
		return nil, err
	}
	if fi == nil {
		f.loaded = nil
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read reservations: %w", err)
	}
	var st stateFile
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse reservations %s: %w", f.path, err)
	}
	f.loaded = fi
	return st.Reservations, nil
}

// save replaces the state file. Callers hold f.mu and the exclusive lock.
func (f *FileRegistry) save(ranges []Range) error {
	data, err := yaml.Marshal(stateFile{Reservations: cloneSorted(ranges)})
	if err != nil {
		return fmt.Errorf("encode reservations: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write reservations: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace reservations: %w", err)
	}
	fi, err := f.stat()
	if err != nil {
		return err
	}
	f.loaded = fi
	return nil
}

func (f *FileRegistry) Create(ctx context.Context, r Range) error {
	return f.withLock(ctx, func() error {
		ranges, err := f.load()
		if err != nil {
			return err
		}
		if err := Validate(r, ranges); err != nil {
			f.mem.replace(ranges)
			return err
		}
		ranges = append(ranges, r.clone())
		if err := f.save(ranges); err != nil {
			return err
		}
		f.mem.replace(ranges)
		return nil
	})
}

func (f *FileRegistry) Delete(ctx context.Context, name string) error {
	return f.withLock(ctx, func() error {
		ranges, err := f.load()
		if err != nil {
			return err
		}
		kept := ranges[:0:0]
		for _, r := range ranges {
			if r.Name != name {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(ranges) {
			f.mem.replace(ranges)
			return notFound(name)
		}
		if err := f.save(kept); err != nil {
			return err
		}
		f.mem.replace(kept)
		return nil
	})
}

func (f *FileRegistry) List(ctx context.Context) ([]Range, error) {
	if err := f.refresh(ctx); err != nil {
		return nil, err
	}
	return f.mem.List(ctx)
}

func (f *FileRegistry) IsReserved(ns string, cat sctid.Category, itemID uint64) bool {
	f.refreshOrWarn()
	return f.mem.IsReserved(ns, cat, itemID)
}

func (f *FileRegistry) Applicable(ns string, cat sctid.Category) []Range {
	f.refreshOrWarn()
	return f.mem.Applicable(ns, cat)
}

// Path returns the registry state file.
func (f *FileRegistry) Path() string {
	return f.path
}
