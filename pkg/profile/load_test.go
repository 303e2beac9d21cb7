package profile

import (
	"path/filepath"
	"testing"
)

func TestLoadSimpleProfile(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "profile.yaml", `
packages:
  - openmpi
  - compiler: gcc/debug
parameters:
  global:
    OPTLEVEL: "2"
`)
	p, err := Load(filepath.Join(dir, "profile.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	params, err := p.Parameters()
	if err != nil {
		t.Fatalf("Parameters: %v", err)
	}
	if params["OPTLEVEL"] != "2" {
		t.Errorf("params = %+v", params)
	}

	pkgs, err := p.Packages()
	if err != nil {
		t.Fatalf("Packages: %v", err)
	}
	if _, ok := pkgs["openmpi"]; !ok {
		t.Errorf("expected openmpi package, got %+v", pkgs)
	}
	if pkgs["compiler"] != (PackageRef{Name: "gcc", Variant: "debug"}) {
		t.Errorf("compiler = %+v", pkgs["compiler"])
	}
}

func TestLoadProfileWithExtends(t *testing.T) {
	parentDir := t.TempDir()
	mustWrite(t, parentDir, "parent.yaml", `
parameters:
  global:
    BASE: "1"
packages:
  - openmpi
`)

	childDir := t.TempDir()
	mustWrite(t, childDir, "child.yaml", `
extends:
  - profile: parent.yaml
    dir: `+parentDir+`
parameters:
  global:
    CHILD: "2"
packages:
  - compiler: gcc/debug
`)

	p, err := Load(filepath.Join(childDir, "child.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	params, err := p.Parameters()
	if err != nil {
		t.Fatalf("Parameters: %v", err)
	}
	if params["BASE"] != "1" || params["CHILD"] != "2" {
		t.Errorf("params = %+v", params)
	}

	pkgs, err := p.Packages()
	if err != nil {
		t.Fatalf("Packages: %v", err)
	}
	if _, ok := pkgs["openmpi"]; !ok {
		t.Errorf("expected inherited openmpi package, got %+v", pkgs)
	}
	if pkgs["compiler"] != (PackageRef{Name: "gcc", Variant: "debug"}) {
		t.Errorf("compiler = %+v", pkgs["compiler"])
	}
}

func TestLoadProfileRejectsRemoteExtends(t *testing.T) {
	childDir := t.TempDir()
	mustWrite(t, childDir, "child.yaml", `
extends:
  - profile: linux/profile.yaml
    urls: ["git://example.com/hashstack.git"]
`)

	_, err := Load(filepath.Join(childDir, "child.yaml"))
	if err == nil {
		t.Fatal("expected an error for a remote (urls-only) extends entry")
	}
}
