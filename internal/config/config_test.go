package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".config", "rewind")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	home := testHome(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, ".claude", "projects"), cfg.Roots.Claude)
	require.Equal(t, filepath.Join(home, ".codex", "sessions"), cfg.Roots.Codex)
	require.Equal(t, filepath.Join(home, ".cache", "rewind", "index.db"), cfg.Index.Path)
	require.Equal(t, filepath.Join(home, ".cache", "rewind", "logs"), cfg.Logging.Dir)

	require.Equal(t, 7.0, cfg.Search.HalfLifeDays)
	require.Equal(t, 20, cfg.Search.Limit)
	require.Equal(t, 5, cfg.Search.Overfetch)
	require.Equal(t, 160, cfg.Search.SnippetWidth)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadOverridesFromFile(t *testing.T) {
	home := testHome(t)
	writeConfig(t, home, `
[roots]
claude = "~/transcripts/claude"

[search]
half_life_days = 14
limit = 50

[logging]
level = "debug"
`)

	cfg, err := Load()
	require.NoError(t, err)

	// overridden, with ~ expanded
	require.Equal(t, filepath.Join(home, "transcripts", "claude"), cfg.Roots.Claude)
	require.Equal(t, 14.0, cfg.Search.HalfLifeDays)
	require.Equal(t, 50, cfg.Search.Limit)
	require.Equal(t, "debug", cfg.Logging.Level)

	// untouched keys keep their defaults
	require.Equal(t, filepath.Join(home, ".codex", "sessions"), cfg.Roots.Codex)
	require.Equal(t, 5, cfg.Search.Overfetch)
	require.Equal(t, 160, cfg.Search.SnippetWidth)
}

func TestLoadClampsBadSearchValues(t *testing.T) {
	home := testHome(t)
	writeConfig(t, home, `
[search]
half_life_days = -3
limit = 0
overfetch = -1
snippet_width = 0
`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7.0, cfg.Search.HalfLifeDays)
	require.Equal(t, 20, cfg.Search.Limit)
	require.Equal(t, 5, cfg.Search.Overfetch)
	require.Equal(t, 160, cfg.Search.SnippetWidth)
}

func TestLoadMalformedFile(t *testing.T) {
	home := testHome(t)
	writeConfig(t, home, "[roots\nclaude = broken")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "config.toml")
}

func TestPathIsUnderHome(t *testing.T) {
	home := testHome(t)
	p, err := Path()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "rewind", "config.toml"), p)
}

func TestExpandHome(t *testing.T) {
	require.Equal(t, "/home/u/x", expandHome("~/x", "/home/u"))
	require.Equal(t, "/abs/path", expandHome("/abs/path", "/home/u"))
	require.Equal(t, "~", expandHome("~", "/home/u"))
	require.Equal(t, "~user/x", expandHome("~user/x", "/home/u"))
}
