package tempdir

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

func TestNewOwnedRemovedOnClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	td, err := New(fs, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !td.Owned() {
		t.Fatal("expected an auto-allocated temp dir to be owned")
	}
	if err := afero.WriteFile(fs, td.Path+"/marker", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := td.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exists, _ := afero.DirExists(fs, td.Path); exists {
		t.Errorf("expected owned temp dir to be removed after Close")
	}
}

func TestNewSuppliedMustBeEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/caller/dir", 0700); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/caller/dir/stale", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := New(fs, "/caller/dir")
	if _, ok := err.(*jobspec.TempDirNotEmptyError); !ok {
		t.Fatalf("expected TempDirNotEmptyError, got %v", err)
	}
}

func TestNewSuppliedNotRemovedOnClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/caller/dir", 0700); err != nil {
		t.Fatal(err)
	}
	td, err := New(fs, "/caller/dir")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if td.Owned() {
		t.Fatal("expected a caller-supplied temp dir to not be owned")
	}
	if err := afero.WriteFile(fs, td.Path+"/output", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := td.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exists, _ := afero.DirExists(fs, td.Path); !exists {
		t.Errorf("expected caller-supplied temp dir to survive Close")
	}
}
