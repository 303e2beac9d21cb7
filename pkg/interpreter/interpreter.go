// Package interpreter implements the command tree interpreter: a
// strictly sequential, recursive walk of a job spec's command list
// that threads a copy-on-scope environment through env-mod, chdir,
// cmd, hit, and commands nodes, materializing inputs and dispatching
// leaf nodes to the child process supervisor, the in-process tool
// dispatcher, or the interactive debug shell.
package interpreter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
	"github.com/thewtex/hashdist/pkg/substitute"
	"github.com/thewtex/hashdist/pkg/supervisor"
	"github.com/thewtex/hashdist/pkg/tempdir"
	"github.com/thewtex/hashdist/pkg/tool"
)

// Spawner is the subset of *supervisor.Supervisor the interpreter needs;
// kept as an interface purely to let tests substitute a fake without
// spawning real processes.
type Spawner interface {
	Run(req supervisor.RunRequest) error
}

// ToolRunner is the subset of *tool.Dispatcher the interpreter needs.
type ToolRunner interface {
	Run(req tool.Request) error
}

// DebugRunner is the subset of *debugshell.Shell the interpreter needs.
type DebugRunner interface {
	Run(argv []string, env *jobspec.Env) error
}

// Interpreter walks a command tree against one run's shared
// collaborators.
type Interpreter struct {
	Supervisor Spawner
	Tool       ToolRunner
	Debug      DebugRunner
	TempDir    *tempdir.TempDir
	Logger     logging.Logger

	// DebugEnabled gates whether cmd/hit leaf nodes with neither to_var
	// nor append_to_file dispatch to Debug instead of Supervisor/Tool.
	DebugEnabled bool

	// LastEnv records the most recently executed leaf node's node_env,
	// the "final post-run snapshot exposed to callers".
	LastEnv *jobspec.Env
}

// New builds an Interpreter. debug enables the interactive debug shell
// path for cmd/hit nodes that don't redirect their output.
func New(sup Spawner, tl ToolRunner, dbg DebugRunner, td *tempdir.TempDir, logger logging.Logger, debug bool) *Interpreter {
	return &Interpreter{Supervisor: sup, Tool: tl, Debug: dbg, TempDir: td, Logger: logger, DebugEnabled: debug}
}

// Run walks commands top-to-bottom starting from the empty node
// position, threading env by copy-on-scope. It returns the error of the
// first node that fails; siblings after a failing node never execute.
func (ip *Interpreter) Run(commands []jobspec.CommandNode, env *jobspec.Env) error {
	return ip.runList(commands, env, jobspec.NodePos{})
}

// runList executes commands in order against a shared, mutable env (the
// caller's scope).
func (ip *Interpreter) runList(commands []jobspec.CommandNode, env *jobspec.Env, pos jobspec.NodePos) error {
	for i, node := range commands {
		if err := ip.runNode(node, env, pos.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// runNode executes one node. env is the current scope: set/prepend/append
// and chdir nodes mutate it in place (visible to later siblings), cmd/hit
// nodes run on a private copy except to_var (writes back into env), and
// commands recurses on its own copy and discards everything.
func (ip *Interpreter) runNode(node jobspec.CommandNode, env *jobspec.Env, pos jobspec.NodePos) error {
	if err := node.Validate(); err != nil {
		return err
	}
	kind, err := node.Kind()
	if err != nil {
		return err
	}

	switch kind {
	case jobspec.KindNone:
		return nil

	case jobspec.KindCommands:
		subEnv := env.Copy()
		return ip.runList(node.Commands, subEnv, pos)

	case jobspec.KindSet, jobspec.KindPrependPath, jobspec.KindAppendPath, jobspec.KindPrependFlag, jobspec.KindAppendFlag:
		return ip.runEnvMod(node, kind, env)

	case jobspec.KindChdir:
		return ip.runChdir(node, env)

	case jobspec.KindCmd, jobspec.KindHit:
		return ip.runLeaf(node, kind, env, pos)
	}
	return fmt.Errorf("unreachable: unhandled node kind %v", kind)
}

// runEnvMod mutates env in place (env *is* the current scope object;
// every node in a list shares it, so in-place mutation here is exactly
// "node_env visible to later siblings, invisible once the enclosing
// commands node returns" since runNode's caller always passes a fresh
// Copy() at each new commands scope).
func (ip *Interpreter) runEnvMod(node jobspec.CommandNode, kind jobspec.CommandNodeKind, env *jobspec.Env) error {
	target, sep := envModTarget(node, kind)
	value, err := node.ResolveValue()
	if err != nil {
		return err
	}
	value, err = substitute.Substitute(value, env)
	if err != nil {
		return err
	}
	if kind == jobspec.KindSet {
		env.Set(target, value)
		return nil
	}
	existing, ok := env.Get(target)
	if !ok || existing == "" {
		env.Set(target, value)
	} else if kind == jobspec.KindPrependPath || kind == jobspec.KindPrependFlag {
		env.Set(target, value+sep+existing)
	} else {
		env.Set(target, existing+sep+value)
	}
	return nil
}

func envModTarget(node jobspec.CommandNode, kind jobspec.CommandNodeKind) (target, sep string) {
	switch kind {
	case jobspec.KindSet:
		return node.Set, ""
	case jobspec.KindPrependPath:
		return node.PrependPath, string(filepath.ListSeparator)
	case jobspec.KindAppendPath:
		return node.AppendPath, string(filepath.ListSeparator)
	case jobspec.KindPrependFlag:
		return node.PrependFlag, " "
	case jobspec.KindAppendFlag:
		return node.AppendFlag, " "
	}
	return "", ""
}

func (ip *Interpreter) runChdir(node jobspec.CommandNode, env *jobspec.Env) error {
	operand, err := substitute.Substitute(node.Chdir, env)
	if err != nil {
		return err
	}
	pwd, _ := env.Get("PWD")
	joined := operand
	if !filepath.IsAbs(operand) {
		joined = filepath.Join(pwd, operand)
	}
	env.Set("PWD", filepath.Clean(joined))
	return nil
}

func (ip *Interpreter) runLeaf(node jobspec.CommandNode, kind jobspec.CommandNodeKind, env *jobspec.Env, pos jobspec.NodePos) error {
	nodeEnv := env.Copy()

	if err := materializeInputs(ip.TempDir, node.Inputs, nodeEnv, pos); err != nil {
		return err
	}

	action := node.Cmd
	if kind == jobspec.KindHit {
		action = node.Hit
	}
	argv := make([]string, len(action))
	for i, a := range action {
		sub, err := substitute.Substitute(a, nodeEnv)
		if err != nil {
			return err
		}
		argv[i] = sub
	}

	var err error
	switch {
	case node.ToVar != "":
		err = ip.runCapture(kind, argv, nodeEnv, node.ToVar, env)
	case node.AppendToFile != "":
		err = ip.runAppendToFile(kind, argv, nodeEnv, node.AppendToFile)
	case ip.DebugEnabled:
		err = ip.Debug.Run(argv, nodeEnv)
	default:
		err = ip.dispatch(kind, argv, nodeEnv, nil)
	}
	if err != nil {
		ip.Logger.Log(logging.ERROR, fmt.Sprintf("node %s failed: %s", pos, err))
		return err
	}
	ip.LastEnv = nodeEnv
	return nil
}

func (ip *Interpreter) dispatch(kind jobspec.CommandNodeKind, argv []string, env *jobspec.Env, stdout io.Writer) error {
	if kind == jobspec.KindHit {
		return ip.Tool.Run(tool.Request{Argv: argv, Env: env, Stdout: stdout, Logger: ip.Logger})
	}
	return ip.Supervisor.Run(supervisor.RunRequest{Argv: argv, Env: env, Stdout: stdout})
}

func (ip *Interpreter) runCapture(kind jobspec.CommandNodeKind, argv []string, env *jobspec.Env, toVar string, parent *jobspec.Env) error {
	var buf bytes.Buffer
	if err := ip.dispatch(kind, argv, env, &buf); err != nil {
		return err
	}
	parent.Set(toVar, strings.TrimSpace(buf.String()))
	return nil
}

// runAppendToFile substitutes and absolutizes target, refuses a target
// inside the run's own TempDir, and spawns with stdout redirected into
// the opened file.
func (ip *Interpreter) runAppendToFile(kind jobspec.CommandNodeKind, argv []string, env *jobspec.Env, target string) error {
	substituted, err := substitute.Substitute(target, env)
	if err != nil {
		return err
	}
	pwd, _ := env.Get("PWD")
	abs := substituted
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(pwd, abs)
	}
	abs = filepath.Clean(abs)

	if within(abs, ip.TempDir.Path) {
		return &jobspec.RedirectToTempForbiddenError{Path: abs}
	}

	f, err := ip.TempDir.Fs.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open append_to_file target %q: %w", abs, err)
	}
	defer f.Close()

	return ip.dispatch(kind, argv, env, f)
}

// within reports whether path is root or a descendant of root, after
// both have been filepath.Clean'd by the caller.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
