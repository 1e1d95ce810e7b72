package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/search"
	"github.com/rewind-cli/rewind/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// filterFetchLimit caps how many sessions a fuzzy filter considers.
const filterFetchLimit = 500

func listCmd() *cobra.Command {
	var filter string
	var limit int
	var here, asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse sessions sorted by modification time",
		Long: `Lists indexed sessions, most recently modified first. On a terminal
this opens the interactive browser; type to narrow by summary or project
path. When piped (or with --json) it prints instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			sched := index.NewScheduler(st, cfg.Roots.Claude, cfg.Roots.Codex)
			if _, err := sched.Run(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "warning: index pass failed: %v\n", err)
			}

			opts := searchOptions(cfg)
			if here {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.Scope = cwd
			}
			if limit > 0 {
				opts.Limit = limit
			}

			if !asJSON && term.IsTerminal(int(os.Stdout.Fd())) {
				sel, err := tui.RunList(st, opts)
				if err != nil {
					return err
				}
				return actOn(st, sel)
			}

			fetch := opts.Limit
			if filter != "" {
				// filter first, cut later, so a narrow filter still fills
				// the requested count
				fetch = filterFetchLimit
			}
			results, err := search.Recent(st, fetch, opts)
			if err != nil {
				return err
			}
			if filter != "" {
				results = search.FuzzyFilter(results, filter)
				if len(results) > opts.Limit {
					results = results[:opts.Limit]
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sessionLines(results))
			}

			for _, l := range sessionLines(results) {
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
					l.SessionID, l.LastModified.Format("2006-01-02 15:04"),
					l.Source, orDash(l.ProjectPath), l.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Fuzzy-filter by summary or project path")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max sessions (0 = config default)")
	cmd.Flags().BoolVar(&here, "here", false, "Only sessions from the current directory tree")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")

	return cmd
}

type sessionLine struct {
	SessionID    string    `json:"session_id"`
	Source       string    `json:"source"`
	ProjectPath  string    `json:"project_path"`
	Summary      string    `json:"summary"`
	LastModified time.Time `json:"last_modified"`
}

func sessionLines(results []search.Result) []sessionLine {
	lines := make([]sessionLine, 0, len(results))
	for _, r := range results {
		lines = append(lines, sessionLine{
			SessionID:    r.SessionID,
			Source:       r.Source,
			ProjectPath:  r.ProjectPath,
			Summary:      oneLine(r.Summary),
			LastModified: r.LastModified,
		})
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
