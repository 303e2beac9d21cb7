// Package resolve implements the import resolution pass:
// turning a canonicalized JobSpec's `import` list into an initial
// environment and a command list with a synthetic ARTIFACT-setting node
// prepended.
package resolve

import (
	"os"
	"sort"
	"strings"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

// ArtifactResolver maps an artifact id to its absolute directory. It is an
// external collaborator; the core only consumes it.
type ArtifactResolver interface {
	Resolve(id string) (dir string, ok bool)
}

// Virtuals maps `virtual:<tag>` identifiers (including the `virtual:`
// prefix) to the real ArtifactId they stand in for.
type Virtuals map[string]string

// Result is the output of resolving a job spec's imports: the
// accumulated env bindings contributed by imports, and the full command
// list to execute (the synthetic ARTIFACT setter followed by the job
// spec's own commands).
type Result struct {
	Env      *jobspec.Env
	Commands []jobspec.CommandNode
}

// Resolve processes spec.Import in order, emitting HDIST_IMPORT /
// HDIST_IMPORT_PATHS bindings, `<REF>_DIR` / `<REF>_ID` bindings for every
// named ref, and prepending a synthetic `{set: ARTIFACT, value:
// artifactDir}` node ahead of spec.Commands.
//
// HDIST_IMPORT is deliberately built from the id *after* virtual
// substitution, so the hashable spec (which records the
// pre-substitution `virtual:<tag>` form) and this runtime value can
// disagree on identity. That divergence is reproduced here
// verbatim rather than "fixed", since it is a property of the spec this
// runner implements, not a bug in this implementation.
func Resolve(spec jobspec.JobSpec, resolver ArtifactResolver, virtuals Virtuals, artifactDir string) (Result, error) {
	env := jobspec.NewEnv()
	var hdistImport []string
	var hdistImportPaths []string

	for _, imp := range spec.Import {
		id := imp.ID
		if strings.HasPrefix(id, "virtual:") {
			real, ok := virtuals[id]
			if !ok {
				return Result{}, &jobspec.MissingVirtualError{Tag: id}
			}
			id = real
		}

		dir, ok := resolver.Resolve(id)
		if !ok {
			ref := ""
			if imp.Ref != nil {
				ref = *imp.Ref
			}
			return Result{}, &jobspec.UnbuiltDependencyError{Ref: ref, ID: id}
		}

		hdistImport = append(hdistImport, id)
		hdistImportPaths = append(hdistImportPaths, dir)

		if imp.Ref != nil {
			env.Set(*imp.Ref+"_DIR", dir)
			env.Set(*imp.Ref+"_ID", id)
		}
	}

	env.Set("HDIST_IMPORT", strings.Join(hdistImport, " "))
	env.Set("HDIST_IMPORT_PATHS", strings.Join(hdistImportPaths, string(os.PathListSeparator)))

	artifactSetter := jobspec.CommandNode{Set: "ARTIFACT", Value: &artifactDir}
	commands := make([]jobspec.CommandNode, 0, len(spec.Commands)+1)
	commands = append(commands, artifactSetter)
	commands = append(commands, spec.Commands...)

	return Result{Env: env, Commands: commands}, nil
}

// PackVirtuals encodes a Virtuals map as `k1=v1;k2=v2...`, entries sorted
// by key, for the HDIST_VIRTUALS environment variable.
func PackVirtuals(v Virtuals) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v[k])
	}
	return strings.Join(parts, ";")
}

// UnpackVirtuals is the inverse of PackVirtuals: splitting on `;` then on
// the first `=` of each entry recovers the original mapping.
func UnpackVirtuals(s string) Virtuals {
	out := Virtuals{}
	if s == "" {
		return out
	}
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		k, v, _ := strings.Cut(entry, "=")
		out[k] = v
	}
	return out
}
