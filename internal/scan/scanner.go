package scan

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewind-cli/rewind/internal/parse"
)

// FileInfo describes one transcript file found under a root.
type FileInfo struct {
	Path   string
	Source parse.Source
	Mtime  time.Time
	Size   int64
}

// Roots enumerates transcript files under the Claude and Codex roots.
// A missing root is not an error, it simply contributes no files.
func Roots(claudeRoot, codexRoot string) ([]FileInfo, error) {
	var files []FileInfo

	if claudeRoot != "" {
		cf, err := scanClaude(claudeRoot)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		files = append(files, cf...)
	}

	if codexRoot != "" {
		cf, err := scanCodex(codexRoot)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		files = append(files, cf...)
	}

	return files, nil
}

func scanClaude(root string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if filepath.Base(path) == "subagents" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		if strings.Contains(filepath.Base(path), "sessions-index") {
			return nil
		}
		files = append(files, FileInfo{
			Path:   path,
			Source: parse.SourceClaude,
			Mtime:  info.ModTime(),
			Size:   info.Size(),
		})
		return nil
	})
	return files, err
}

func scanCodex(root string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		files = append(files, FileInfo{
			Path:   path,
			Source: parse.SourceCodex,
			Mtime:  info.ModTime(),
			Size:   info.Size(),
		})
		return nil
	})
	return files, err
}
