package tool

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
	"github.com/thewtex/hashdist/pkg/supervisor"
)

func testLogger() logging.Logger {
	return logging.New(logrus.New())
}

type fakeRegistry struct {
	calls int
	path  string
}

func (f *fakeRegistry) GetOrCreate(header string, level logging.Level) (string, error) {
	f.calls++
	return fmt.Sprintf("/tmp/logpipe-%s-%s", header, level), nil
}

func TestDispatcherLogpipeWritesPath(t *testing.T) {
	reg := &fakeRegistry{}
	d := New(reg, nil)

	var out bytes.Buffer
	err := d.Run(Request{
		Argv:   []string{"logpipe", "build", "INFO"},
		Env:    jobspec.NewEnv(),
		Stdout: &out,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reg.calls != 1 {
		t.Fatalf("expected GetOrCreate to be called once, got %d", reg.calls)
	}
	if out.String() != "/tmp/logpipe-build-INFO" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestDispatcherLogpipeBadArgCount(t *testing.T) {
	d := New(&fakeRegistry{}, nil)
	err := d.Run(Request{Argv: []string{"logpipe", "build"}, Env: jobspec.NewEnv(), Logger: testLogger()})
	if _, ok := err.(*jobspec.InvalidJobSpecError); !ok {
		t.Fatalf("expected InvalidJobSpecError, got %v", err)
	}
}

func TestDispatcherLogpipeBadLevel(t *testing.T) {
	d := New(&fakeRegistry{}, nil)
	err := d.Run(Request{Argv: []string{"logpipe", "build", "NOPE"}, Env: jobspec.NewEnv(), Logger: testLogger()})
	if _, ok := err.(*jobspec.InvalidJobSpecError); !ok {
		t.Fatalf("expected InvalidJobSpecError, got %v", err)
	}
}

func TestDispatcherRunsRegisteredTool(t *testing.T) {
	var gotArgv []string
	entry := func(argv []string, env *jobspec.Env, logger logging.Logger) (int, error) {
		gotArgv = argv
		return 0, nil
	}
	d := New(&fakeRegistry{}, entry)
	err := d.Run(Request{Argv: []string{"mytool", "--flag"}, Env: jobspec.NewEnv(), Logger: testLogger()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gotArgv) != 2 || gotArgv[0] != "mytool" {
		t.Errorf("entry point received argv %v", gotArgv)
	}
}

func TestDispatcherNonZeroExitIsHitFailed(t *testing.T) {
	entry := func(argv []string, env *jobspec.Env, logger logging.Logger) (int, error) {
		return 7, nil
	}
	d := New(&fakeRegistry{}, entry)
	err := d.Run(Request{Argv: []string{"mytool"}, Env: jobspec.NewEnv(), Logger: testLogger()})
	if _, ok := err.(*jobspec.HitFailedError); !ok {
		t.Fatalf("expected HitFailedError, got %v", err)
	}
}

func TestDispatcherRunsEntryInEnvPWD(t *testing.T) {
	wantDir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(prev)

	var gotDir string
	entry := func(argv []string, env *jobspec.Env, logger logging.Logger) (int, error) {
		gotDir, err = os.Getwd()
		return 0, err
	}
	d := New(&fakeRegistry{}, entry)
	env := jobspec.NewEnv()
	env.Set("PWD", wantDir)
	if err := d.Run(Request{Argv: []string{"mytool"}, Env: env, Logger: testLogger()}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Resolve symlinks (macOS /tmp is a symlinked /private/tmp) before comparing.
	wantResolved, _ := filepath.EvalSymlinks(wantDir)
	gotResolved, _ := filepath.EvalSymlinks(gotDir)
	if gotResolved != wantResolved {
		t.Errorf("entry ran in %q, want %q", gotDir, wantDir)
	}

	after, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd after Run: %v", err)
	}
	afterResolved, _ := filepath.EvalSymlinks(after)
	prevResolved, _ := filepath.EvalSymlinks(prev)
	if afterResolved != prevResolved {
		t.Errorf("cwd not restored: got %q, want %q", after, prev)
	}
}

// sanity: Dispatcher.Registry satisfies supervisor.LogPipeRegistry's public
// surface, so production code can wire the real registry straight in
// without an adapter.
var _ LogPipeCreator = (*supervisor.LogPipeRegistry)(nil)
