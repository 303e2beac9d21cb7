package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// rawInclude mirrors one entry of a profile document's `extends` list:
// a local directory holding another profile document. Fetching a remote
// profile via `urls`/`key` (as load_profile did for git-backed parents)
// has no backend in this runner, so only the `dir`-style local include is
// supported; an `extends` entry naming `urls` instead of `dir` fails.
type rawInclude struct {
	Profile string   `yaml:"profile"`
	Dir     string   `yaml:"dir"`
	Urls    []string `yaml:"urls"`
}

type rawProfileDoc struct {
	Extends    []rawInclude         `yaml:"extends"`
	Packages   []rawPackageEntry    `yaml:"packages"`
	Parameters rawParametersSection `yaml:"parameters"`
}

type rawParametersSection struct {
	Global map[string]string `yaml:"global"`
}

// rawPackageEntry decodes either a bare "name[/variant]" string or a
// single-key {vname: "name[/variant]"} mapping.
type rawPackageEntry struct {
	bare string
	pair map[string]string
}

func (r *rawPackageEntry) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		r.bare = s
		return nil
	}
	var m map[string]string
	if err := unmarshal(&m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("each package specification mapping must have exactly one key, got %d", len(m))
	}
	r.pair = m
	return nil
}

func (r rawPackageEntry) toEntry() PackageEntry {
	if r.pair != nil {
		for vname, spec := range r.pair {
			return PackageEntry{Vname: vname, Spec: spec}
		}
	}
	return PackageEntry{Vname: "", Spec: r.bare}
}

// Load reads a profile document from path and recursively loads every
// profile named in its `extends` list, building the full *Profile DAG
// bottom-up (parents load before the child they extend, exactly as
// load_profile's recursion did).
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %q: %w", path, err)
	}
	var doc rawProfileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", path, err)
	}

	baseDir := filepath.Dir(path)

	extends := make([]*Profile, 0, len(doc.Extends))
	for _, inc := range doc.Extends {
		if inc.Dir == "" {
			return nil, fmt.Errorf("profile %q: extends entry for %q has no local dir (remote profile fetch via urls/key is not supported)", path, inc.Profile)
		}
		dir := inc.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		parent, err := Load(filepath.Join(dir, inc.Profile))
		if err != nil {
			return nil, err
		}
		extends = append(extends, parent)
	}

	rawPackages := make([]PackageEntry, 0, len(doc.Packages))
	for _, entry := range doc.Packages {
		rawPackages = append(rawPackages, entry.toEntry())
	}

	return New(baseDir, filepath.Base(path), extends, rawPackages, doc.Parameters.Global)
}
