package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 10 * time.Second

func runGit(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		name := args[0]
		if len(args) > 1 {
			name += " " + args[1]
		}
		return "", fmt.Errorf("git %s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// IsGitRepo reports whether dir is inside a git working tree.
func IsGitRepo(dir string) bool {
	out, err := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached.
// The register hook also uses it to stamp session records.
func CurrentBranch(dir string) (string, error) {
	return runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func add(repoDir, path, branch, baseBranch string) error {
	if _, err := runGit(repoDir, "worktree", "add", "-b", branch, path, baseBranch); err != nil {
		return err
	}
	return nil
}

func remove(repoDir, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := runGit(repoDir, args...)
	return err
}

func prune(repoDir string) {
	runGit(repoDir, "worktree", "prune")
}

func branchExists(repoDir, branch string) bool {
	_, err := runGit(repoDir, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

func branchDelete(repoDir, branch string) error {
	_, err := runGit(repoDir, "branch", "-D", branch)
	return err
}
