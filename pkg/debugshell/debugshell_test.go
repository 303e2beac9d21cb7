package debugshell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

func TestRenderEnvSourceQuoting(t *testing.T) {
	env := jobspec.NewEnv()
	env.Set("A", "plain")
	env.Set("B", "has'quote")

	got := renderEnvSource(env)
	want := "export A='plain'\nexport B='has'\\''quote'\n"
	if got != want {
		t.Errorf("renderEnvSource = %q, want %q", got, want)
	}
}

func TestShellRunContinuesOnZeroExit(t *testing.T) {
	env := jobspec.NewEnv()
	env.Set("PWD", t.TempDir())

	var out bytes.Buffer
	s := &Shell{Stdin: strings.NewReader(""), Stdout: &out, Stderr: &out, Shell: "true"}
	if err := s.Run([]string{"gcc", "-c", "foo.c"}, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "foo.c") {
		t.Errorf("expected argv echoed to stdout, got %q", out.String())
	}
}

func TestShellRunAbortsOnNonZeroExit(t *testing.T) {
	env := jobspec.NewEnv()
	env.Set("PWD", t.TempDir())

	s := &Shell{Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Shell: "false"}
	err := s.Run([]string{"gcc"}, env)
	aborted, ok := err.(*jobspec.DebugAbortedError)
	if !ok {
		t.Fatalf("expected *jobspec.DebugAbortedError, got %T: %v", err, err)
	}
	if aborted.Code != 1 {
		t.Errorf("code = %d, want 1", aborted.Code)
	}
}
