// Package debugshell implements the interactive debug shell: instead
// of spawning the staged command, drop the operator into an
// interactive shell pre-loaded with the node's env, and let them
// decide whether the script should continue.
package debugshell

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

// Shell launches the interactive debug session. Stdin/Stdout/Stderr
// default to the process's own terminal streams when left nil, which is
// what every real debug session wants; tests supply fakes instead.
type Shell struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer

	// Shell is the interpreter to launch, defaulting to "bash"; its
	// --rcfile/--noprofile pair is what actually lets us preload an env
	// file without also replaying the user's own profile.
	Shell string
}

// New builds a Shell wired to the real terminal.
func New() *Shell {
	return &Shell{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, Shell: "bash"}
}

// Run materializes env as an `export K='V'` source file in a throwaway
// directory, prints argv (the command that would otherwise have run),
// and launches an interactive shell sourcing that file with cwd
// env["PWD"]. A non-zero shell exit is reported as
// *jobspec.DebugAbortedError; the caller is expected to abort the
// enclosing run on that error.
func (s *Shell) Run(argv []string, env *jobspec.Env) error {
	dir, err := os.MkdirTemp("", "hashdist-debug-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to create debug shell scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	rcPath := dir + "/rc"
	if err := os.WriteFile(rcPath, []byte(renderEnvSource(env)), 0600); err != nil {
		return fmt.Errorf("failed to write debug shell env file: %w", err)
	}

	stdout := s.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	fmt.Fprintf(stdout, "hashdist debug: about to run %v\n", argv)
	fmt.Fprintf(stdout, "hashdist debug: exit the shell with status 0 to continue, non-zero to abort\n")

	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.Command(shell, "--noprofile", "--rcfile", rcPath)
	cmd.Dir, _ = env.Get("PWD")
	cmd.Env = env.Environ()
	cmd.Stdin = s.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = stdout
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return &jobspec.DebugAbortedError{Code: code}
	}
	return nil
}

// renderEnvSource renders env as a sequence of `export K='V'` lines,
// quoting embedded single quotes the POSIX-shell way: close the quote,
// emit an escaped quote, reopen it.
func renderEnvSource(env *jobspec.Env) string {
	var b strings.Builder
	for _, k := range env.Keys() {
		v, _ := env.Get(k)
		b.WriteString("export ")
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(v, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
