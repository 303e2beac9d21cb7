package jobspec

// Canonicalize returns a copy of spec with defaults filled in: `import`
// defaults to empty, each import's `ref` defaults to absent, and an
// empty-string ref is rejected. No other validation happens here;
// structural validation of command nodes happens at interpretation time.
//
// Canonicalizing an already-canonical spec is a no-op.
func Canonicalize(spec JobSpec) (JobSpec, error) {
	out := spec
	out.Import = make([]Import, len(spec.Import))
	for i, imp := range spec.Import {
		canon, err := canonicalizeImport(imp)
		if err != nil {
			return JobSpec{}, err
		}
		out.Import[i] = canon
	}
	if out.Commands == nil {
		out.Commands = []CommandNode{}
	}
	return out, nil
}

func canonicalizeImport(imp Import) (Import, error) {
	if imp.Ref != nil && *imp.Ref == "" {
		return Import{}, invalidf("empty ref should be absent, not \"\"")
	}
	return imp, nil
}
