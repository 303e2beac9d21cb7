// Package supervisor implements the child process supervisor and the
// log-pipe multiplexer: spawning a child with a fully-replaced
// environment, weaving its stdout/stderr (and any registered
// side-channel log pipes) into a logger or a capture sink, and
// returning only once the child has exited and every descriptor has
// been drained.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
)

// Supervisor spawns child processes on behalf of the interpreter (C5),
// sharing one LogPipeRegistry across every child of a single run.
type Supervisor struct {
	Registry *LogPipeRegistry
	Logger   logging.Logger
}

// New builds a Supervisor backed by registry, whose log lines (for stdout,
// stderr, and log pipes with no dedicated sub-logger override) are
// emitted through logger.
func New(registry *LogPipeRegistry, logger logging.Logger) *Supervisor {
	return &Supervisor{Registry: registry, Logger: logger}
}

// RunRequest describes one child invocation.
type RunRequest struct {
	// Argv is the fully-substituted argument vector; Argv[0] is the
	// executable.
	Argv []string
	// Env fully replaces the host environment for the child. Env.Get("PWD") is used as the child's cwd.
	Env *jobspec.Env
	// Stdout, if non-nil, receives the child's raw stdout bytes instead of
	// having them logged at DEBUG; used for
	// to_var and append_to_file.
	Stdout io.Writer
}

// SupportsLogPipes reports whether this build can multiplex FIFO-backed
// log pipes (true on unix, false elsewhere); exposed so callers can decide
// whether to reject a job spec up front instead of at first spawn.
func SupportsLogPipes() bool {
	return supportsLogPipes
}

// Run spawns req.Argv with req.Env as its entire environment and cwd
// req.Env["PWD"], weaves its output into the logger (or req.Stdout when
// capturing), and returns once the child has exited and all pipes are
// drained. A non-zero exit is reported as *jobspec.CommandFailedError.
func (s *Supervisor) Run(req RunRequest) error {
	if len(req.Argv) == 0 {
		return fmt.Errorf("empty argv")
	}
	pwd, _ := req.Env.Get("PWD")

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = pwd
	cmd.Env = req.Env.Environ()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if !supportsLogPipes && !s.Registry.Empty() {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return &jobspec.LogPipesUnsupportedError{}
	}

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return rewriteSpawnError(err, req.Argv[0], pwd)
	}
	// The child has its own copies of the pipe ends now; close the sides
	// we don't use in the parent, including stdin (always left empty).
	stdinR.Close()
	stdinW.Close()
	stdoutW.Close()
	stderrW.Close()

	s.Logger.Log(logging.DEBUG, fmt.Sprintf("running %v", req.Argv))

	stop := s.forwardSignals(cmd)
	defer stop()

	exitCode, err := multiplex(cmd, stdoutR, stderrR, s.Registry, req.Stdout, s.Logger)
	if err != nil {
		s.Logger.Log(logging.ERROR, err.Error())
		return err
	}
	if exitCode != 0 {
		cmdErr := &jobspec.CommandFailedError{Argv: req.Argv, Code: exitCode}
		s.Logger.Log(logging.ERROR, cmdErr.Error())
		return cmdErr
	}
	return nil
}

// forwardSignals relays SIGINT/SIGTERM received by this process on to
// cmd's child for as long as it runs, so an operator interrupting
// hdist-run-job interrupts the job it's supervising too. The returned
// func stops forwarding and must be called once the child has exited.
func (s *Supervisor) forwardSignals(cmd *exec.Cmd) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case recv := <-sig:
				if err := cmd.Process.Signal(recv); err != nil {
					s.Logger.Log(logging.WARNING, fmt.Sprintf("failed to forward signal %v: %v", recv, err))
				}
			}
		}
	}()

	return func() {
		cancel()
		signal.Stop(sig)
	}
}

// rewriteSpawnError turns an exec "not found" failure into the clearer
// *jobspec.CommandNotFoundError.
func rewriteSpawnError(err error, argv0, cwd string) error {
	if !isNotFound(err) {
		return fmt.Errorf("failed to start command: %w", err)
	}
	return &jobspec.CommandNotFoundError{
		Argv0:    argv0,
		CWD:      cwd,
		HasSlash: strings.Contains(argv0, "/"),
	}
}

func isNotFound(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound) || os.IsNotExist(execErr.Err)
	}
	return false
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
