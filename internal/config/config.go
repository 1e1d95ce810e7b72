package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rewind-cli/rewind/internal/logging"
)

type Config struct {
	Roots   Roots          `toml:"roots"`
	Index   Index          `toml:"index"`
	Search  Search         `toml:"search"`
	Logging logging.Config `toml:"logging"`
}

type Roots struct {
	Claude string `toml:"claude"`
	Codex  string `toml:"codex"`
}

type Index struct {
	Path string `toml:"path"`
}

type Search struct {
	// HalfLifeDays controls how fast recency decays a match's score.
	HalfLifeDays float64 `toml:"half_life_days"`
	// Limit is the default result count.
	Limit int `toml:"limit"`
	// Overfetch is the candidate multiplier applied before session dedup.
	Overfetch int `toml:"overfetch"`
	// SnippetWidth is the preview window size in characters.
	SnippetWidth int `toml:"snippet_width"`
}

// Path returns the config file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rewind", "config.toml"), nil
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(home, ".cache")
	}

	cfg := &Config{
		Roots: Roots{
			Claude: filepath.Join(home, ".claude", "projects"),
			Codex:  filepath.Join(home, ".codex", "sessions"),
		},
		Index: Index{
			Path: filepath.Join(cacheDir, "rewind", "index.db"),
		},
		Search: Search{
			HalfLifeDays: 7.0,
			Limit:        20,
			Overfetch:    5,
			SnippetWidth: 160,
		},
		Logging: logging.Config{
			Dir:    filepath.Join(cacheDir, "rewind", "logs"),
			Level:  "info",
			Format: "json",
		},
	}

	cfgPath, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.Roots.Claude = expandHome(cfg.Roots.Claude, home)
	cfg.Roots.Codex = expandHome(cfg.Roots.Codex, home)
	cfg.Index.Path = expandHome(cfg.Index.Path, home)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir, home)

	if cfg.Search.HalfLifeDays <= 0 {
		cfg.Search.HalfLifeDays = 7.0
	}
	if cfg.Search.Limit <= 0 {
		cfg.Search.Limit = 20
	}
	if cfg.Search.Overfetch <= 0 {
		cfg.Search.Overfetch = 5
	}
	if cfg.Search.SnippetWidth <= 0 {
		cfg.Search.SnippetWidth = 160
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
