// Package util provides helpers shared by scvv packages.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindBinary locates an executable. Candidates are checked in order: the
// configured path, the path named by envVar, name next to the running
// binary, then name on PATH. Empty candidates are skipped.
func FindBinary(name, configured, envVar string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("configured %s path %q is not executable", name, configured)
	}

	if envVar != "" {
		if p := os.Getenv(envVar); p != "" && isExecutable(p) {
			return p, nil
		}
	}

	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), name)
		if isExecutable(sibling) {
			return sibling, nil
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
