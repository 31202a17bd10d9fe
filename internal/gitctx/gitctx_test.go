package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repository with one commit and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0644))
	run("add", "a.txt")
	run("commit", "-m", "initial commit")
	return dir
}

func TestCollect_NotARepo(t *testing.T) {
	t.Parallel()

	info := Collect(context.Background(), t.TempDir())
	assert.False(t, info.IsRepo)
	assert.Empty(t, info.Describe())
}

func TestCollect_RepoWithCommit(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	info := Collect(context.Background(), dir)

	assert.True(t, info.IsRepo)
	assert.Equal(t, "main", info.Branch)
	assert.Empty(t, info.DirtyFiles)
	require.Len(t, info.RecentCommits, 1)
	assert.Contains(t, info.RecentCommits[0], "initial commit")
}

func TestCollect_DirtyFiles(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed\n"), 0644))

	info := Collect(context.Background(), dir)
	assert.Equal(t, []string{"a.txt"}, info.DirtyFiles)
}

func TestDescribe_IncludesBranchAndCommits(t *testing.T) {
	t.Parallel()

	info := Info{
		IsRepo:        true,
		Branch:        "feature/x",
		DirtyFiles:    []string{"main.go"},
		RecentCommits: []string{"abc1234 tweak"},
	}
	desc := info.Describe()
	assert.Contains(t, desc, "Git branch: feature/x")
	assert.Contains(t, desc, "main.go")
	assert.Contains(t, desc, "abc1234 tweak")
}
