// Package runner wires together the job runner's components into the
// single entry point external callers use: canonicalize, resolve
// imports, build the initial environment, walk the command tree, and
// guarantee temp-dir cleanup on every exit path.
package runner

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/errors"

	"github.com/thewtex/hashdist/pkg/debugshell"
	"github.com/thewtex/hashdist/pkg/interpreter"
	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
	"github.com/thewtex/hashdist/pkg/resolve"
	"github.com/thewtex/hashdist/pkg/supervisor"
	"github.com/thewtex/hashdist/pkg/tempdir"
	"github.com/thewtex/hashdist/pkg/tool"
)

// Request is everything one run needs from its caller, the Go analogue
// of the original's run_job() parameters.
type Request struct {
	Spec jobspec.JobSpec

	Resolver resolve.ArtifactResolver
	Virtuals resolve.Virtuals
	// ArtifactDir is the directory this job's own build output occupies;
	// bound into the synthetic ARTIFACT-setting node.
	ArtifactDir string

	// OverrideEnv wins over anything produced by import resolution.
	OverrideEnv map[string]string
	// Config is serialized into HDIST_CONFIG verbatim; callers own the
	// encoding.
	Config string
	// Cwd becomes PWD; absolutized if relative.
	Cwd string

	// TempDirFs backs the run's scratch directory; nil defaults to the
	// real OS filesystem. Tests inject afero.NewMemMapFs().
	TempDirFs afero.Fs
	// TempDirPath, if non-empty, is adopted instead of creating a fresh
	// temp dir; it must be empty.
	TempDirPath string

	// Debug enables the interactive debug shell for cmd/hit leaves that
	// don't redirect their output.
	Debug bool

	// ToolEntry is the in-process tool registry entry point for `hit`
	// actions other than `hit logpipe`.
	ToolEntry tool.EntryPoint

	Logger logging.Logger
}

// Result is what a completed run hands back to its caller.
type Result struct {
	// LastEnv is the final env snapshot of the most recently executed
	// leaf node; nil for an empty command list.
	LastEnv *jobspec.Env
}

// Run executes req.Spec end to end. The run's TempDir is always cleaned
// up (when owned) before Run returns, whether it succeeds or fails; a
// failure during cleanup is combined with any run error via
// errors.NewAggregate rather than masking either one.
func Run(req Request) (Result, error) {
	spec, err := jobspec.Canonicalize(req.Spec)
	if err != nil {
		return Result{}, err
	}

	cwd := req.Cwd
	if !filepath.IsAbs(cwd) {
		cwd, err = filepath.Abs(cwd)
		if err != nil {
			return Result{}, fmt.Errorf("failed to absolutize cwd %q: %w", req.Cwd, err)
		}
	}

	resolved, err := resolve.Resolve(spec, req.Resolver, req.Virtuals, req.ArtifactDir)
	if err != nil {
		return Result{}, err
	}

	env := resolved.Env
	env.Set("PATH", "")
	for k, v := range req.OverrideEnv {
		env.Set(k, v)
	}
	env.Set("HDIST_VIRTUALS", resolve.PackVirtuals(req.Virtuals))
	env.Set("HDIST_CONFIG", req.Config)
	env.Set("PWD", cwd)

	fs := req.TempDirFs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	td, err := tempdir.New(fs, req.TempDirPath)
	if err != nil {
		return Result{}, err
	}

	registry := supervisor.NewLogPipeRegistry(td.Path)
	sup := supervisor.New(registry, req.Logger)
	dispatcher := tool.New(registry, req.ToolEntry)
	shell := debugshell.New()

	ip := interpreter.New(sup, dispatcher, shell, td, req.Logger, req.Debug)

	runErr := ip.Run(resolved.Commands, env)
	closeErr := td.Close()

	if runErr != nil && closeErr != nil {
		return Result{}, errors.NewAggregate([]error{runErr, closeErr})
	}
	if runErr != nil {
		return Result{}, runErr
	}
	if closeErr != nil {
		return Result{}, closeErr
	}
	return Result{LastEnv: ip.LastEnv}, nil
}
