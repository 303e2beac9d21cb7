package jobspec

import "fmt"

// InvalidJobSpecError covers every structural violation of the job-spec
// document: duplicate kind keys, an empty node carrying foreign keys, an
// empty-string ref, inputs/to_var/append_to_file on a commands node, a
// malformed input entry, a malformed logpipe invocation, or an unknown
// log level token.
type InvalidJobSpecError struct {
	Msg string
}

func (e *InvalidJobSpecError) Error() string { return e.Msg }

func invalidf(format string, args ...interface{}) error {
	return &InvalidJobSpecError{Msg: fmt.Sprintf(format, args...)}
}

// MissingVirtualError is raised when a `virtual:<tag>` import has no entry
// in the caller-supplied virtuals map.
type MissingVirtualError struct {
	Tag string
}

func (e *MissingVirtualError) Error() string {
	return fmt.Sprintf("job spec contained a virtual dependency %q that was not provided", e.Tag)
}

// UnbuiltDependencyError is raised when the artifact resolver cannot
// resolve an import to a directory.
type UnbuiltDependencyError struct {
	Ref string
	ID  string
}

func (e *UnbuiltDependencyError) Error() string {
	return fmt.Sprintf("dependency %q=%q not already built, please build it first", e.Ref, e.ID)
}

// UnknownVariableError is raised by variable substitution (C1) when a
// referenced name is not bound in the environment.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("no such environment variable: %s", e.Name)
}

// CommandNotFoundError is raised when the child process supervisor fails to
// exec argv[0].
type CommandNotFoundError struct {
	Argv0    string
	CWD      string
	HasSlash bool
}

func (e *CommandNotFoundError) Error() string {
	if e.HasSlash {
		return fmt.Sprintf("command %q not found (cwd: %s)", e.Argv0, e.CWD)
	}
	return fmt.Sprintf("command %q not found in $PATH (cwd: %s)", e.Argv0, e.CWD)
}

// CommandFailedError is raised when a spawned child exits with a non-zero
// status.
type CommandFailedError struct {
	Argv []string
	Code int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %v failed with exit code %d", e.Argv, e.Code)
}

// HitFailedError is raised when an in-process tool invocation returns a
// non-zero code or panics/errors uncaught.
type HitFailedError struct {
	Argv []string
	Err  error
}

func (e *HitFailedError) Error() string {
	return fmt.Sprintf("hit command %v failed: %s", e.Argv, e.Err)
}

func (e *HitFailedError) Unwrap() error { return e.Err }

// RedirectToTempForbiddenError is raised when append_to_file targets a
// path inside the run's own temp dir.
type RedirectToTempForbiddenError struct {
	Path string
}

func (e *RedirectToTempForbiddenError) Error() string {
	return fmt.Sprintf("cannot redirect stdout into the run's own temp directory: %s", e.Path)
}

// LogPipesUnsupportedError is raised when a job registers log pipes but
// runs on a platform whose supervisor only implements the simple
// (non-FIFO) polling mode.
type LogPipesUnsupportedError struct{}

func (e *LogPipesUnsupportedError) Error() string {
	return "log pipes are not supported on this platform"
}

// DebugAbortedError is raised when the interactive debug shell (C10) exits
// non-zero.
type DebugAbortedError struct {
	Code int
}

func (e *DebugAbortedError) Error() string {
	return fmt.Sprintf("debug session aborted the build (shell exit code %d)", e.Code)
}

// TempDirNotEmptyError is raised when a caller-supplied temp dir is not
// empty on entry.
type TempDirNotEmptyError struct {
	Path string
}

func (e *TempDirNotEmptyError) Error() string {
	return fmt.Sprintf("temp dir %q must be empty", e.Path)
}

// ConflictingProfilesError is raised by pkg/profile when two branches of
// the inheritance DAG contribute the same key, or diamond inheritance is
// detected.
type ConflictingProfilesError struct {
	Msg string
}

func (e *ConflictingProfilesError) Error() string { return e.Msg }
