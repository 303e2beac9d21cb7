package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKeyValues(t *testing.T) {
	testCases := []struct {
		name    string
		entries []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", entries: nil, want: map[string]string{}},
		{name: "single", entries: []string{"CFLAGS=-O2"}, want: map[string]string{"CFLAGS": "-O2"}},
		{name: "value contains equals", entries: []string{"A=b=c"}, want: map[string]string{"A": "b=c"}},
		{name: "malformed", entries: []string{"NOEQUALS"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseKeyValues(tc.entries)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseKeyValues: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParseVirtuals(t *testing.T) {
	got, err := parseVirtuals([]string{"virtual:compiler=gcc-abc123"})
	if err != nil {
		t.Fatalf("parseVirtuals: %v", err)
	}
	if got["virtual:compiler"] != "gcc-abc123" {
		t.Errorf("got %v", got)
	}
}

func TestLoadProfileParameters(t *testing.T) {
	dir := t.TempDir()
	profileYAML := `
parameters:
  global:
    OPTLEVEL: "2"
`
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte(profileYAML), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	params, err := loadProfileParameters(path)
	if err != nil {
		t.Fatalf("loadProfileParameters: %v", err)
	}
	if params["OPTLEVEL"] != "2" {
		t.Errorf("params = %v, want OPTLEVEL=2", params)
	}
}

func TestLoadProfileParametersOverriddenByExplicitEnv(t *testing.T) {
	dir := t.TempDir()
	profileYAML := `
parameters:
  global:
    OPTLEVEL: "2"
`
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte(profileYAML), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	params, err := loadProfileParameters(path)
	if err != nil {
		t.Fatalf("loadProfileParameters: %v", err)
	}
	explicit, err := parseKeyValues([]string{"OPTLEVEL=3"})
	if err != nil {
		t.Fatalf("parseKeyValues: %v", err)
	}
	for k, v := range explicit {
		params[k] = v
	}
	if params["OPTLEVEL"] != "3" {
		t.Errorf("explicit --override-env should win, got OPTLEVEL=%q", params["OPTLEVEL"])
	}
}
