// Package worktree gives isolated workers their own git checkout. Each task
// gets a directory under <repo>/.claude/worktrees/<task> on branch
// worker/<task>, so parallel agents never edit the same working tree.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
)

const branchPrefix = "worker/"

// Info describes one isolation checkout.
type Info struct {
	Path       string `json:"path"`
	Branch     string `json:"branch"`
	BaseBranch string `json:"base_branch"`
}

// Root returns the checkout directory for a task without creating it.
func Root(repoDir, taskID string) string {
	return filepath.Join(repoDir, ".claude", "worktrees", taskID)
}

// Ensure creates the checkout for taskID. Any failure is returned to the
// caller, which aborts the spawn; there is no fallback to the shared tree.
func Ensure(repoDir, taskID string) (Info, error) {
	if !IsGitRepo(repoDir) {
		return Info{}, fmt.Errorf("%s is not a git repository", repoDir)
	}
	base, err := CurrentBranch(repoDir)
	if err != nil {
		return Info{}, err
	}
	if base == "HEAD" {
		return Info{}, fmt.Errorf("repository %s has a detached HEAD; cannot branch a worktree", repoDir)
	}

	path := Root(repoDir, taskID)
	branch := branchPrefix + taskID
	if branchExists(repoDir, branch) {
		// Stale branch from an earlier run with the same task id.
		prune(repoDir)
		if err := branchDelete(repoDir, branch); err != nil {
			return Info{}, fmt.Errorf("stale branch %s: %w", branch, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Info{}, fmt.Errorf("create worktree parent: %w", err)
	}
	if err := add(repoDir, path, branch, base); err != nil {
		return Info{}, err
	}
	return Info{Path: path, Branch: branch, BaseBranch: base}, nil
}

// Remove deletes a checkout and its branch. When git refuses (stale
// administrative data), the directory is removed directly and the metadata
// pruned afterwards.
func Remove(repoDir string, info Info) error {
	if err := remove(repoDir, info.Path, true); err != nil {
		if rmErr := os.RemoveAll(info.Path); rmErr != nil {
			return fmt.Errorf("remove worktree %s: %w", info.Path, err)
		}
		prune(repoDir)
	}
	if info.Branch != "" && branchExists(repoDir, info.Branch) {
		return branchDelete(repoDir, info.Branch)
	}
	return nil
}
