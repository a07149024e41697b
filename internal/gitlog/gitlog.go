// Package gitlog reads recent commit history from a repository via the
// git CLI. It is read-only: the engine consults it for closure evidence and
// commit-reference detection, never for mutations.
package gitlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wardenhq/warden/internal/types"
)

// fieldSep separates hash and subject in the pretty format. Unit separator
// cannot appear in commit subjects.
const fieldSep = "\x1f"

// Reader provides read access to recent git history.
type Reader interface {
	// RecentCommits returns up to limit commits, newest first.
	RecentCommits(ctx context.Context, repoPath string, limit int) ([]types.Commit, error)

	// FilesTouched returns the deduplicated set of files changed by the
	// last limit commits, in first-seen order.
	FilesTouched(ctx context.Context, repoPath string, limit int) ([]string, error)
}

// CLIReader implements Reader using the git CLI.
type CLIReader struct {
	gitPath string
}

// NewCLIReader locates git and verifies it runs.
func NewCLIReader(ctx context.Context) (*CLIReader, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &CLIReader{gitPath: gitPath}, nil
}

// RecentCommits returns up to limit commits from repoPath, newest first.
func (r *CLIReader) RecentCommits(ctx context.Context, repoPath string, limit int) ([]types.Commit, error) {
	if limit <= 0 {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, r.gitPath, "-C", repoPath, "log",
		fmt.Sprintf("-n%d", limit), "--pretty=format:%H"+fieldSep+"%s")
	output, err := cmd.Output()
	if err != nil {
		// A repository with no commits yet is not an error worth failing on.
		var ee *exec.ExitError
		if errors.As(err, &ee) && strings.Contains(string(ee.Stderr), "does not have any commits") {
			return nil, nil
		}
		return nil, fmt.Errorf("git log failed in %s: %w", repoPath, err)
	}

	return parseCommits(string(output)), nil
}

// FilesTouched returns the files changed by the last limit commits.
func (r *CLIReader) FilesTouched(ctx context.Context, repoPath string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, r.gitPath, "-C", repoPath, "log",
		fmt.Sprintf("-n%d", limit), "--name-only", "--pretty=format:")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log --name-only failed in %s: %w", repoPath, err)
	}

	return parseFileList(string(output)), nil
}

func parseCommits(output string) []types.Commit {
	var commits []types.Commit
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		hash, subject, found := strings.Cut(line, fieldSep)
		if !found {
			continue
		}
		commits = append(commits, types.Commit{Hash: hash, Message: subject})
	}
	return commits
}

func parseFileList(output string) []string {
	var files []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, line)
	}
	return files
}
