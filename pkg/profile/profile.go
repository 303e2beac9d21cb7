// Package profile implements the profile inheritance DAG (supplemented
// from original_source/hashdist/spec/profile.py): a tree of build
// profiles whose parameters and package lists merge leaf-first from a
// list of parent profiles, with file resolution searching the profile's
// own directory before its parents'.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

// PackageRef is one resolved package entry: the real package name plus
// an optional variant (e.g. "openmpi/debug" -> Name: "openmpi", Variant:
// "debug").
type PackageRef struct {
	Name    string
	Variant string
}

// Profile is one node of the inheritance DAG. Extends holds this
// profile's parents, which are children in DAG terms (a profile extends
// things built before it).
type Profile struct {
	BaseDir string
	DocName string
	Extends []*Profile

	// RawPackages is the profile's own (unmerged) `packages` list entries,
	// either "name[/variant]" or {vname: "name[/variant]"}; Packages()
	// merges these with every ancestor's.
	RawPackages []PackageEntry
	// OwnParameters is this profile's own `parameters.global` map, prior to
	// merging with ancestors.
	OwnParameters map[string]string
}

// PackageEntry is one raw entry of a profile's `packages` list: either a
// bare "name[/variant]" string (Vname empty; the parsed package name is
// used as the vname) or an explicit {vname: "name[/variant]"} mapping.
type PackageEntry struct {
	Vname string
	Spec  string
}

// New builds a Profile node. extends must already be fully constructed
// (callers load parents before children, as load_profile did).
func New(baseDir, docName string, extends []*Profile, rawPackages []PackageEntry, ownParameters map[string]string) (*Profile, error) {
	p := &Profile{
		BaseDir:       baseDir,
		DocName:       docName,
		Extends:       extends,
		RawPackages:   rawPackages,
		OwnParameters: ownParameters,
	}
	if err := p.checkDiamond(map[*Profile]bool{}); err != nil {
		return nil, err
	}
	return p, nil
}

// checkDiamond walks the Extends graph looking for the same *Profile
// reachable via two distinct paths, which original_source explicitly
// calls out as unsupported.
func (p *Profile) checkDiamond(seen map[*Profile]bool) error {
	for _, base := range p.Extends {
		if seen[base] {
			return &jobspec.ConflictingProfilesError{
				Msg: fmt.Sprintf("profile %q is reachable via diamond inheritance", base.DocName),
			}
		}
		seen[base] = true
		if err := base.checkDiamond(seen); err != nil {
			return err
		}
	}
	return nil
}

// Parameters merges this profile's own parameters.global with every
// ancestor's, leaf-first: each parent must contribute disjoint keys
// (ConflictingProfiles otherwise), then this profile's own keys
// overwrite/extend the merged result (get_packages'
// doc.get('parameters', {}).get('global', {}) step, applied last).
func (p *Profile) Parameters() (map[string]string, error) {
	merged := map[string]string{}
	for _, base := range p.Extends {
		baseParams, err := base.Parameters()
		if err != nil {
			return nil, err
		}
		for k, v := range baseParams {
			if _, ok := merged[k]; ok {
				return nil, &jobspec.ConflictingProfilesError{
					Msg: fmt.Sprintf("two base profiles set the same parameter %q", k),
				}
			}
			merged[k] = v
		}
	}
	for k, v := range p.OwnParameters {
		merged[k] = v
	}
	return merged, nil
}

// Packages merges this profile's own `packages` list with every
// ancestor's, ported from profile.py's get_packages: ancestors merge
// first (disjoint vnames required across ancestor branches), then this
// profile's own entries apply on top, where a "name/skip" variant
// removes a previously-merged vname instead of inserting one.
func (p *Profile) Packages() (map[string]PackageRef, error) {
	merged := map[string]PackageRef{}
	for _, base := range p.Extends {
		basePkgs, err := base.Packages()
		if err != nil {
			return nil, err
		}
		for k, v := range basePkgs {
			if _, ok := merged[k]; ok {
				return nil, &jobspec.ConflictingProfilesError{
					Msg: fmt.Sprintf("package %q found in two different base profiles", k),
				}
			}
			merged[k] = v
		}
	}

	for _, entry := range p.RawPackages {
		name, variant, err := parsePackageSpec(entry.Spec)
		if err != nil {
			return nil, err
		}
		vname := entry.Vname
		if vname == "" {
			vname = name
		}
		if variant == "skip" {
			delete(merged, vname)
			continue
		}
		merged[vname] = PackageRef{Name: name, Variant: variant}
	}
	return merged, nil
}

// parsePackageSpec splits "name" or "name/variant" the way
// profile.py's parse_entry did.
func parsePackageSpec(s string) (name, variant string, err error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("too many slashes in package name: %s", s)
	}
}

// FindFile resolves relName against this profile's own BaseDir first,
// then each parent in Extends order; a name resolving inside two
// different parents is ConflictingProfiles (ported from find_file).
func (p *Profile) FindFile(relName string) (string, error) {
	own := filepath.Join(p.BaseDir, relName)
	if _, err := os.Stat(own); err == nil {
		return own, nil
	}

	found := ""
	for _, base := range p.Extends {
		path, err := base.FindFile(relName)
		if err != nil {
			return "", err
		}
		if path == "" {
			continue
		}
		if found != "" {
			return "", &jobspec.ConflictingProfilesError{
				Msg: fmt.Sprintf("file %q found in two different base profiles", relName),
			}
		}
		found = path
	}
	return found, nil
}

func (p *Profile) String() string {
	return fmt.Sprintf("<Profile %s>", filepath.Join(p.BaseDir, p.DocName))
}
