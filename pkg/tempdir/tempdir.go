// Package tempdir owns the per-run scratch directory lifecycle:
// allocating one when the caller doesn't supply one, guarding that a
// supplied one starts empty, and removing it on close only when this
// package created it.
package tempdir

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

// TempDir is the run-owned scratch directory that the inputs
// materializer and the log-pipe registry write into.
type TempDir struct {
	Fs   afero.Fs
	Path string

	owned bool // true if this package created the dir and must remove it
}

// New allocates or adopts a temp dir.
//
// If path == "", a fresh directory is created under fs with a
// `hashdist-run-job-` prefix (disambiguated with a uuid, since afero's
// in-memory filesystem used in tests has no real mkdtemp) and will be
// removed by Close.
//
// If path is non-empty, it must already exist and be empty; it is
// adopted but never removed by Close (*jobspec.TempDirNotEmptyError
// otherwise).
func New(fs afero.Fs, path string) (*TempDir, error) {
	if path == "" {
		dir := fmt.Sprintf("/tmp/hashdist-run-job-%s", uuid.NewString())
		if err := fs.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create run temp dir: %w", err)
		}
		return &TempDir{Fs: fs, Path: dir, owned: true}, nil
	}

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect supplied temp dir %q: %w", path, err)
	}
	if len(entries) != 0 {
		return nil, &jobspec.TempDirNotEmptyError{Path: path}
	}
	return &TempDir{Fs: fs, Path: path, owned: false}, nil
}

// Close removes the directory tree if this TempDir created it; a
// caller-supplied directory is left untouched.
func (t *TempDir) Close() error {
	if !t.owned {
		return nil
	}
	if err := t.Fs.RemoveAll(t.Path); err != nil {
		return fmt.Errorf("failed to remove run temp dir %q: %w", t.Path, err)
	}
	return nil
}

// Owned reports whether this TempDir will remove its directory on Close.
func (t *TempDir) Owned() bool {
	return t.owned
}
