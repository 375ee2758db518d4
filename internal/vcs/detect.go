package vcs

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetectionResult contains information about the detected VCS
type DetectionResult struct {
	// Type is the detected VCS type
	Type Type

	// RepoRoot is the repository root directory path
	RepoRoot string

	// HasGit indicates a .git directory/file was found
	HasGit bool

	// HasJJ indicates a .jj directory was found
	HasJJ bool
}

// Detect identifies the VCS type for a given directory by walking up from
// path until a .jj directory or .git entry is found. A directory holding
// both is reported as TypeColocate.
//
// Returns ErrNotInVCS if no VCS is found.
func Detect(path string) (*DetectionResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	current := absPath
	for {
		result := &DetectionResult{RepoRoot: current}
		if info, err := os.Stat(filepath.Join(current, ".jj")); err == nil && info.IsDir() {
			result.HasJJ = true
		}
		// .git may be a file inside a worktree.
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			result.HasGit = true
		}

		switch {
		case result.HasJJ && result.HasGit:
			result.Type = TypeColocate
			return result, nil
		case result.HasJJ:
			result.Type = TypeJJ
			return result, nil
		case result.HasGit:
			result.Type = TypeGit
			return result, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// PreferredVCS returns the preferred implementation for colocated
// repositories. ATLAS_VCS=git or ATLAS_VCS=jj overrides the default of jj.
func PreferredVCS() Type {
	switch strings.ToLower(os.Getenv("ATLAS_VCS")) {
	case "git":
		return TypeGit
	case "jj", "jujutsu":
		return TypeJJ
	}
	return TypeJJ
}

// IsJJAvailable checks if the jj command is available on the system
func IsJJAvailable() bool {
	_, err := exec.LookPath("jj")
	return err == nil
}

// IsGitAvailable checks if the git command is available on the system
func IsGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
