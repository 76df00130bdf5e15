// Package config locates a project's .lace directory, reads its optional
// settings and validates its declaration files.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	// DirName is the governance directory name.
	DirName = ".lace"
	// PoliciesFile marks a directory as a .lace root.
	PoliciesFile = "policies.yaml"
)

// ErrNotFound is returned when no .lace/policies.yaml exists above any
// start path.
var ErrNotFound = errors.New("unable to locate .lace/policies.yaml")

// Location is a discovered project.
type Location struct {
	// RootDir is the .lace directory.
	RootDir string `json:"root_dir"`
	// PolicyFile is RootDir/policies.yaml.
	PolicyFile string `json:"policy_file"`
}

// ProjectDir returns the directory containing the .lace directory.
// Module paths are relative to it.
func (l Location) ProjectDir() string {
	return filepath.Dir(l.RootDir)
}

// Locate walks upward from each start path in turn and returns the first
// directory holding .lace/policies.yaml. Directories already visited from
// an earlier start path are not searched twice.
func Locate(starts ...string) (Location, error) {
	visited := make(map[string]struct{})

	for _, start := range starts {
		current, err := filepath.Abs(start)
		if err != nil {
			return Location{}, err
		}
		for {
			if _, seen := visited[current]; seen {
				break
			}
			visited[current] = struct{}{}

			rootDir := filepath.Join(current, DirName)
			policyFile := filepath.Join(rootDir, PoliciesFile)
			if info, err := os.Stat(policyFile); err == nil && !info.IsDir() {
				return Location{RootDir: rootDir, PolicyFile: policyFile}, nil
			}

			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}

	return Location{}, ErrNotFound
}
