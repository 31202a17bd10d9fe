package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/internal/config"
)

// ---- Test helpers -----------------------------------------------------------

func testConfig() config.ContextConfig {
	return config.ContextConfig{
		MaxFileBytes:  config.DefaultMaxFileBytes,
		MaxTotalBytes: config.DefaultMaxTotalBytes,
		MaxFiles:      config.DefaultMaxFiles,
	}
}

// newTestScanner builds a scanner over a temp dir populated from files.
func newTestScanner(t *testing.T, cfg config.ContextConfig, files map[string]string) *Scanner {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return NewScanner(root, cfg)
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

// ---- Relevant ---------------------------------------------------------------

func TestRelevant_RanksKeywordMatchesFirst(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"auth.go":   "package auth\n\nfunc Login() {}\n",
		"render.go": "package render\n",
	})

	files, err := s.Relevant(context.Background(), "fix the login flow in auth")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "auth.go", files[0].Path)
}

func TestRelevant_SkipsIgnoredDirectories(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"main.go":                 "package main\n",
		"node_modules/dep/idx.js": "module.exports = {}\n",
		".git/config":             "[core]\n",
	})

	files, err := s.Relevant(context.Background(), "main package")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(files))
}

func TestRelevant_ConfiguredIgnorePatterns(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.IgnorePatterns = []string{"generated/**"}
	s := newTestScanner(t, cfg, map[string]string{
		"main.go":          "package main\n",
		"generated/gen.go": "package generated\n",
	})

	files, err := s.Relevant(context.Background(), "main package")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(files))
}

func TestRelevant_SkipsBinaryFiles(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"data.json": "{\"a\": \x00\x01\x02}",
		"main.go":   "package main\n",
	})

	files, err := s.Relevant(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(files))
}

func TestRelevant_SkipsUnknownExtensions(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"image.png.b64": "not really an image\n",
		"main.go":       "package main\n",
	})

	files, err := s.Relevant(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(files))
}

func TestRelevant_TruncatesOversizedFiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFileBytes = 64
	s := newTestScanner(t, cfg, map[string]string{
		"big.go": "package big\n" + strings.Repeat("// filler\n", 50),
	})

	files, err := s.Relevant(context.Background(), "big package")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Truncated)
	assert.True(t, strings.HasSuffix(files[0].Content, truncationMarker))
	assert.LessOrEqual(t, len(files[0].Content), 64+len(truncationMarker))
}

func TestRelevant_DeduplicatesIdenticalContent(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"copy1.go": "package same\n",
		"copy2.go": "package same\n",
	})

	files, err := s.Relevant(context.Background(), "same package")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRelevant_HonorsMaxFiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFiles = 2
	s := newTestScanner(t, cfg, map[string]string{
		"a.go": "package a // widget\n",
		"b.go": "package b // widget\n",
		"c.go": "package c // widget\n",
	})

	files, err := s.Relevant(context.Background(), "widget")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

// ---- Tree / Search ----------------------------------------------------------

func TestTree_SortedRelativePaths(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"b/file.go": "package b\n",
		"a.go":      "package a\n",
	})

	tree, err := s.Tree()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b/file.go"}, tree)
}

func TestSearch_FindsLinesCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"a.go": "package a\n\n// HandleLogin processes logins\n",
	})

	results, err := s.Search("handlelogin", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "a.go:3:")
}

func TestSearch_CapsResults(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, testConfig(), map[string]string{
		"a.go": strings.Repeat("match\n", 50),
	})

	results, err := s.Search("match", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

// ---- Keywords ---------------------------------------------------------------

func TestExtractKeywords_FiltersShortAndStopwords(t *testing.T) {
	t.Parallel()

	got := extractKeywords("Fix the login flow for the auth package")
	assert.Equal(t, []string{"fix", "login", "flow", "auth", "package"}, got)
}

func TestExtractKeywords_Deduplicates(t *testing.T) {
	t.Parallel()

	got := extractKeywords("cache cache CACHE")
	assert.Equal(t, []string{"cache"}, got)
}
