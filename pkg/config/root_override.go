package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RootOverride is the optional per-root config file (spec §6's
// ".watchmanconfig"-equivalent): both JSON and YAML are accepted, mirroring
// the teacher's obsidian/ignore.go "accept a plain override file if
// present, else defaults" pattern, generalized from ignore-path prefixes to
// a small typed struct.
type RootOverride struct {
	RootFiles       []string `json:"root_files,omitempty" yaml:"root_files,omitempty"`
	IgnoreVCS       []string `json:"ignore_vcs,omitempty" yaml:"ignore_vcs,omitempty"`
	GCAgeSeconds    int      `json:"gc_age_seconds,omitempty" yaml:"gc_age_seconds,omitempty"`
	IdleReapSeconds int      `json:"idle_reap_seconds,omitempty" yaml:"idle_reap_seconds,omitempty"`
}

// LoadRootOverride looks for RootConfigFileName or its .yaml sibling
// directly under rootPath and parses whichever is found. Absence of either
// file is not an error: the caller falls back to daemon-wide defaults.
func LoadRootOverride(rootPath string) (*RootOverride, error) {
	for _, name := range []string{RootConfigFileName, RootConfigFileNameYaml} {
		path := filepath.Join(rootPath, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var o RootOverride
		if filepath.Ext(name) == ".yaml" {
			err = yaml.Unmarshal(data, &o)
		} else {
			err = json.Unmarshal(data, &o)
		}
		if err != nil {
			return nil, err
		}
		return &o, nil
	}
	return nil, nil
}

// FindRootFiles walks upward from startDir looking for the first
// directory containing any file named in rootFiles (checked in order, so
// RootConfigFileName — always listed first per spec §6 — wins ties). It
// returns the containing directory and ok=false if none is found before
// reaching the filesystem root.
func FindRootFiles(startDir string, rootFiles []string) (dir string, ok bool) {
	dir = startDir
	for {
		for _, name := range rootFiles {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
