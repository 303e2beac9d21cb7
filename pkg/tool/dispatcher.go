// Package tool implements the in-process tool dispatcher:
// `hit` actions run without forking, with `hit logpipe` intercepted
// in-process by the supervisor's log-pipe registry and everything else
// handed to a registered entry point.
package tool

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
)

// chdirMu serializes os.Chdir around in-process tool invocations; cwd is
// process-wide state, and the interpreter only ever runs one leaf node at
// a time, but the lock keeps that single-threaded assumption from silently
// corrupting a future caller that dispatches concurrently.
var chdirMu sync.Mutex

// EntryPoint is the external in-process tool registry contract:
// run(argv, env, logger) -> exit code.
type EntryPoint func(argv []string, env *jobspec.Env, logger logging.Logger) (int, error)

// LogPipeCreator is the subset of supervisor.LogPipeRegistry the `hit
// logpipe` interception needs; kept as an interface here so this package
// never imports supervisor (which would create an import cycle, since
// supervisor's Run loop drains the very pipes this creates).
type LogPipeCreator interface {
	GetOrCreate(header string, level logging.Level) (string, error)
}

// Dispatcher runs `hit` argv vectors in-process.
type Dispatcher struct {
	Registry LogPipeCreator
	Entry    EntryPoint
}

// New builds a Dispatcher. entry is the tool registry's entry point for
// everything other than `hit logpipe`.
func New(registry LogPipeCreator, entry EntryPoint) *Dispatcher {
	return &Dispatcher{Registry: registry, Entry: entry}
}

// Request describes one `hit` invocation.
type Request struct {
	// Argv is the fully-substituted argument vector, *not* including the
	// conceptual "hit" prefix; Argv[0] is the sub-command
	// name, e.g. "logpipe" or a real tool name.
	Argv []string
	Env  *jobspec.Env
	// Stdout, if non-nil, receives the path written by `hit logpipe`
	// (to_var / append_to_file). It is not passed to the registered
	// EntryPoint, so the output of any other tool is not captured;
	// process-wide stdout is never mutated.
	Stdout io.Writer
	Logger logging.Logger
}

// Run dispatches req. `hit logpipe HEADER LEVEL` is intercepted and writes
// the registered FIFO's path to req.Stdout; when Stdout is nil the pipe is
// still registered but its path is not written anywhere. Anything else is
// handed to the registered EntryPoint with a
// quieted logger, with the process cwd set to env["PWD"] for the
// duration of the call and restored to its previous value on return.
func (d *Dispatcher) Run(req Request) error {
	if len(req.Argv) == 0 {
		return &jobspec.InvalidJobSpecError{Msg: "hit requires at least one argument"}
	}

	if req.Argv[0] == "logpipe" {
		return d.runLogpipe(req)
	}

	if d.Entry == nil {
		return &jobspec.HitFailedError{Argv: req.Argv, Err: fmt.Errorf("no tool registry configured")}
	}

	quiet := logging.Quieted(req.Logger)
	pwd, _ := req.Env.Get("PWD")
	code, err := d.runInDir(pwd, req.Argv, req.Env, quiet)
	if err != nil {
		return &jobspec.HitFailedError{Argv: req.Argv, Err: err}
	}
	if code != 0 {
		return &jobspec.HitFailedError{Argv: req.Argv, Err: fmt.Errorf("exit code %d", code)}
	}
	return nil
}

// runInDir invokes d.Entry with the process cwd set to dir for the
// duration of the call, restoring the previous cwd before returning. A
// panic in the entry point is returned as an error.
func (d *Dispatcher) runInDir(dir string, argv []string, env *jobspec.Env, logger logging.Logger) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = 0, fmt.Errorf("tool panicked: %v", r)
		}
	}()
	if dir == "" {
		return d.Entry(argv, env, logger)
	}

	chdirMu.Lock()
	defer chdirMu.Unlock()

	prev, err := os.Getwd()
	if err != nil {
		return 0, fmt.Errorf("failed to read current directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return 0, fmt.Errorf("failed to chdir to %q: %w", dir, err)
	}
	defer os.Chdir(prev)

	return d.Entry(argv, env, logger)
}

func (d *Dispatcher) runLogpipe(req Request) error {
	if len(req.Argv) != 3 {
		return &jobspec.InvalidJobSpecError{Msg: fmt.Sprintf("wrong number of arguments to \"hit logpipe\": %v", req.Argv)}
	}
	header := req.Argv[1]
	level, err := logging.ParseLevel(req.Argv[2])
	if err != nil {
		return &jobspec.InvalidJobSpecError{Msg: err.Error()}
	}
	path, err := d.Registry.GetOrCreate(header, level)
	if err != nil {
		return err
	}
	if req.Stdout != nil {
		_, err := io.WriteString(req.Stdout, path)
		return err
	}
	return nil
}
