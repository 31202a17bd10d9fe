// Package gitctx gathers lightweight repository state (branch, dirty files,
// recent commits) for the model prompt. Everything here is best-effort: a
// directory that is not a git repository simply yields an empty Info.
package gitctx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kestrelhq/kestrel/internal/logging"
)

var logger = logging.New("gitctx")

// recentCommitCount is how many commits are included in the prompt.
const recentCommitCount = 5

// Info is a snapshot of repository state.
type Info struct {
	IsRepo        bool
	Branch        string
	DirtyFiles    []string
	RecentCommits []string
}

// Collect gathers repository state for dir. Failures are logged at debug and
// produce a partial (or empty) Info rather than an error.
func Collect(ctx context.Context, dir string) Info {
	var info Info

	branch, err := run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		logger.Debug("not a git repository", "dir", dir)
		return info
	}
	info.IsRepo = true
	info.Branch = branch

	if status, err := run(ctx, dir, "status", "--porcelain"); err == nil && status != "" {
		for _, line := range strings.Split(status, "\n") {
			if len(line) > 3 {
				info.DirtyFiles = append(info.DirtyFiles, strings.TrimSpace(line[3:]))
			}
		}
	}

	logArg := fmt.Sprintf("-%d", recentCommitCount)
	if commits, err := run(ctx, dir, "log", logArg, "--oneline"); err == nil && commits != "" {
		info.RecentCommits = strings.Split(commits, "\n")
	}

	return info
}

// Describe renders the info as prompt text. An empty string means there is
// nothing worth telling the model.
func (i Info) Describe() string {
	if !i.IsRepo {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Git branch: %s\n", i.Branch)
	if len(i.DirtyFiles) > 0 {
		fmt.Fprintf(&b, "Uncommitted changes: %s\n", strings.Join(i.DirtyFiles, ", "))
	}
	if len(i.RecentCommits) > 0 {
		b.WriteString("Recent commits:\n")
		for _, c := range i.RecentCommits {
			fmt.Fprintf(&b, "  %s\n", c)
		}
	}
	return b.String()
}

// run executes a git subcommand in dir and returns trimmed stdout.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
