package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Janitor owns one request's work directory and every file created in it.
// Cleanup removes whatever is still tracked and then the directory itself;
// it is safe to call more than once.
type Janitor struct {
	dir string
	log zerolog.Logger

	mu    sync.Mutex
	files map[string]struct{}
}

func NewJanitor(dir string, log zerolog.Logger) *Janitor {
	return &Janitor{dir: dir, log: log, files: make(map[string]struct{})}
}

func (j *Janitor) Dir() string { return j.dir }

func (j *Janitor) Prepare() error {
	return os.MkdirAll(j.dir, 0o755)
}

// Track registers path (relative names are placed in the work directory)
// and returns the absolute location.
func (j *Janitor) Track(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(j.dir, path)
	}
	j.mu.Lock()
	j.files[path] = struct{}{}
	j.mu.Unlock()
	return path
}

// Release deletes path now and stops tracking it.
func (j *Janitor) Release(path string) error {
	j.mu.Lock()
	delete(j.files, path)
	j.mu.Unlock()
	return j.remove(path)
}

// Tracked returns the paths that have not been released yet.
func (j *Janitor) Tracked() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.files))
	for p := range j.files {
		out = append(out, p)
	}
	return out
}

func (j *Janitor) Cleanup() error {
	var errs []error
	for _, p := range j.Tracked() {
		if err := j.Release(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(j.dir); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		j.log.Error().Err(err).Str("dir", j.dir).Msg("cleanup incomplete")
	} else {
		j.log.Debug().Str("dir", j.dir).Msg("work dir removed")
	}
	return err
}

func (j *Janitor) remove(path string) error {
	var errs []error
	for _, p := range []string{path, path + ".part"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepStale removes request directories under root last modified before
// now-olderThan. They are left behind only when the process died mid-run.
func SweepStale(root string, olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-olderThan)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
