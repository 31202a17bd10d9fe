package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes kestrel.toml into dir and returns its path.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewDefaults()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxFileBytes, cfg.Context.MaxFileBytes)
	assert.Equal(t, DefaultMaxRetries, cfg.LLM.MaxRetries)
	assert.False(t, cfg.AutoAccept)
}

func TestLoadFromFile_PartialOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
model = "local-llama"
auto_accept = true

[context]
max_files = 3
`)
	cfg, _, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "local-llama", cfg.Model)
	assert.True(t, cfg.AutoAccept)
	assert.Equal(t, 3, cfg.Context.MaxFiles)

	// Unnamed keys keep their defaults.
	assert.Equal(t, DefaultMaxFileBytes, cfg.Context.MaxFileBytes)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.LLM.TimeoutSeconds)
}

func TestLoadFromFile_ReportsUnknownKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "model = \"m\"\nmispelled_key = 1\n")
	_, md, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, md.Undecoded(), 1)
	assert.Equal(t, "mispelled_key", md.Undecoded()[0].String())
}

func TestLoadFromFile_InvalidTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "model = [unclosed")
	_, _, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestFindConfigFile_WalksUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeConfig(t, root, "model = \"m\"\n")
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFileName), found)
}

func TestFindConfigFile_NotFound(t *testing.T) {
	t.Parallel()

	found, err := FindConfigFile(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := NewDefaults()
	cfg.Model = "custom-model"
	cfg.Context.IgnorePatterns = []string{"generated/**"}

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, Save(cfg, path))

	loaded, _, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Model)
	assert.Equal(t, []string{"generated/**"}, loaded.Context.IgnorePatterns)
}
