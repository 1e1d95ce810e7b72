package main

import (
	"fmt"
	"os"

	"github.com/rewind-cli/rewind/internal/config"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/parse"
	"github.com/rewind-cli/rewind/internal/scan"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify roots, database, FTS5, and show stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("=== Config ===")
			cfgPath, err := config.Path()
			if err == nil {
				if _, statErr := os.Stat(cfgPath); statErr == nil {
					fmt.Printf("  File: %s (OK)\n", cfgPath)
				} else {
					fmt.Printf("  File: %s (absent, using defaults)\n", cfgPath)
				}
			}
			fmt.Printf("  Logs: %s\n", cfg.Logging.Dir)

			fmt.Println("\n=== Roots ===")
			checkDir("Claude", cfg.Roots.Claude)
			checkDir("Codex", cfg.Roots.Codex)

			fmt.Println("\n=== File Scan ===")
			files, err := scan.Roots(cfg.Roots.Claude, cfg.Roots.Codex)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				claudeCount, codexCount := 0, 0
				for _, f := range files {
					if f.Source == parse.SourceClaude {
						claudeCount++
					} else {
						codexCount++
					}
				}
				fmt.Printf("  Claude JSONL files: %d\n", claudeCount)
				fmt.Printf("  Codex  JSONL files: %d\n", codexCount)
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.Index.Path)
			if _, err := os.Stat(cfg.Index.Path); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'rewind index' first)")
				return nil
			}

			st, err := index.Open(cfg.Index.Path)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer st.Close()

			if st.Rebuilt {
				fmt.Println("  Status: was unreadable, recreated empty (run 'rewind index')")
			}

			sessionCount, err := st.SessionCount()
			if err != nil {
				return fmt.Errorf("count sessions: %w", err)
			}
			messageCount, err := st.MessageCount()
			if err != nil {
				return fmt.Errorf("count messages: %w", err)
			}
			fmt.Printf("  Sessions: %d\n", sessionCount)
			fmt.Printf("  Messages: %d\n", messageCount)

			fmt.Println("\n=== FTS5 ===")
			ftsCount, err := st.FTSCount()
			if err != nil {
				fmt.Printf("  FTS5 error: %v\n", err)
			} else {
				fmt.Printf("  FTS5 entries: %d\n", ftsCount)
				if ftsCount == messageCount {
					fmt.Println("  Status: OK (synced)")
				} else {
					fmt.Printf("  Status: MISMATCH (messages=%d, fts=%d)\n", messageCount, ftsCount)
				}
			}

			if info, err := os.Stat(cfg.Index.Path); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
