package interpreter

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
	"github.com/thewtex/hashdist/pkg/supervisor"
	"github.com/thewtex/hashdist/pkg/tempdir"
	"github.com/thewtex/hashdist/pkg/tool"
)

type fakeSpawner struct {
	calls []supervisor.RunRequest
	fail  error
	write string
}

func (f *fakeSpawner) Run(req supervisor.RunRequest) error {
	f.calls = append(f.calls, req)
	if req.Stdout != nil && f.write != "" {
		_, _ = req.Stdout.Write([]byte(f.write))
	}
	return f.fail
}

type fakeTool struct {
	calls []tool.Request
}

func (f *fakeTool) Run(req tool.Request) error {
	f.calls = append(f.calls, req)
	return nil
}

type fakeDebug struct {
	ran  bool
	argv []string
}

func (f *fakeDebug) Run(argv []string, env *jobspec.Env) error {
	f.ran = true
	f.argv = argv
	return nil
}

func newTestTempDir(t *testing.T) *tempdir.TempDir {
	t.Helper()
	fs := afero.NewMemMapFs()
	td, err := tempdir.New(fs, "")
	if err != nil {
		t.Fatalf("tempdir.New: %v", err)
	}
	return td
}

func newInterpreter(t *testing.T, sup Spawner, tl ToolRunner, dbg DebugRunner, debug bool) *Interpreter {
	return New(sup, tl, dbg, newTestTempDir(t), logging.New(logrus.New()), debug)
}

func TestRunSetAndCmd(t *testing.T) {
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	v := "1"
	commands := []jobspec.CommandNode{
		{Set: "X", Value: &v},
		{Cmd: []string{"echo", "$X"}},
	}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sup.calls) != 1 {
		t.Fatalf("expected 1 spawn, got %d", len(sup.calls))
	}
	if got := sup.calls[0].Argv; len(got) != 2 || got[1] != "1" {
		t.Errorf("argv = %v, want [echo 1]", got)
	}
	// set is scoped to the top-level env here (same scope as cmd), so it
	// should be visible on the caller's env object too.
	if val, _ := env.Get("X"); val != "1" {
		t.Errorf("X = %q, want 1", val)
	}
}

func TestCommandsScopeDiscardsMutations(t *testing.T) {
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	v := "leaked"
	commands := []jobspec.CommandNode{
		{Commands: []jobspec.CommandNode{
			{Set: "Y", Value: &v},
		}},
	}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := env.Get("Y"); ok {
		t.Errorf("expected Y to not leak out of commands scope")
	}
}

func TestToVarCapturesIntoParentScope(t *testing.T) {
	sup := &fakeSpawner{write: "captured-value\n"}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{
		{Cmd: []string{"echo", "hi"}, ToVar: "RESULT"},
	}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, _ := env.Get("RESULT"); got != "captured-value" {
		t.Errorf("RESULT = %q, want %q", got, "captured-value")
	}
}

func TestChdirIsScopedToChildren(t *testing.T) {
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{
		{Commands: []jobspec.CommandNode{
			{Chdir: "sub"},
			{Cmd: []string{"pwd"}},
		}},
		{Cmd: []string{"pwd"}},
	}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sup.calls) != 2 {
		t.Fatalf("expected 2 spawns, got %d", len(sup.calls))
	}
	pwdOf := func(req supervisor.RunRequest) string {
		v, _ := req.Env.Get("PWD")
		return v
	}
	if pwdOf(sup.calls[0]) != "/work/sub" {
		t.Errorf("first pwd = %q, want /work/sub", pwdOf(sup.calls[0]))
	}
	if pwdOf(sup.calls[1]) != "/work" {
		t.Errorf("second pwd = %q, want /work (chdir must not escape commands scope)", pwdOf(sup.calls[1]))
	}
}

func TestInputsMaterializedAndExposedLocally(t *testing.T) {
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{
		{Cmd: []string{"cat", "$in0"}, Inputs: []jobspec.InputSpec{jobspec.NewStringInput("payload")}},
	}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := env.Get("in0"); ok {
		t.Errorf("in0 must not leak into the caller's scope")
	}
	got := sup.calls[0].Argv[1]
	if !strings.HasSuffix(got, "_in0") {
		t.Errorf("argv[1] = %q, want a path ending in _in0", got)
	}
	contents, err := afero.ReadFile(ip.TempDir.Fs, got)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(contents) != "payload" {
		t.Errorf("materialized input = %q, want %q", contents, "payload")
	}
}

func TestAppendToFileRefusesTempDirTarget(t *testing.T) {
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", ip.TempDir.Path)

	commands := []jobspec.CommandNode{
		{Cmd: []string{"echo", "hi"}, AppendToFile: "leak.log"},
	}
	err := ip.Run(commands, env)
	if _, ok := err.(*jobspec.RedirectToTempForbiddenError); !ok {
		t.Fatalf("expected *jobspec.RedirectToTempForbiddenError, got %T: %v", err, err)
	}
}

func TestDebugModeDispatchesToShell(t *testing.T) {
	dbg := &fakeDebug{}
	sup := &fakeSpawner{}
	ip := newInterpreter(t, sup, &fakeTool{}, dbg, true)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{{Cmd: []string{"gcc", "-c", "foo.c"}}}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !dbg.ran {
		t.Fatal("expected debug shell to run")
	}
	if len(sup.calls) != 0 {
		t.Errorf("expected no real spawn in debug mode, got %d", len(sup.calls))
	}
}

func TestDebugModeSkippedWhenToVarActive(t *testing.T) {
	dbg := &fakeDebug{}
	sup := &fakeSpawner{write: "v\n"}
	ip := newInterpreter(t, sup, &fakeTool{}, dbg, true)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{{Cmd: []string{"echo", "hi"}, ToVar: "V"}}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dbg.ran {
		t.Error("to_var nodes must spawn for real even with debug enabled")
	}
}

func TestHitDispatchesToToolRunner(t *testing.T) {
	tl := &fakeTool{}
	ip := newInterpreter(t, &fakeSpawner{}, tl, &fakeDebug{}, false)
	env := jobspec.NewEnv()
	env.Set("PWD", "/work")

	commands := []jobspec.CommandNode{{Hit: []string{"mytool", "--flag"}}}
	if err := ip.Run(commands, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tl.calls) != 1 || tl.calls[0].Argv[0] != "mytool" {
		t.Errorf("tool calls = %+v", tl.calls)
	}
}
