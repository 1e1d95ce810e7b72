package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/search"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

func colorizeSource(source string) string {
	switch source {
	case "claude":
		return sColorBlue + source + sColorReset
	case "codex":
		return sColorGreen + source + sColorReset
	default:
		return source
	}
}

// colorizeSnippet wraps the highlighted spans in bold red. Spans are rune
// offsets into the snippet, sorted and non-overlapping.
func colorizeSnippet(snippet string, spans []search.Span) string {
	if len(spans) == 0 {
		return snippet
	}
	runes := []rune(snippet)
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		if sp.Start < prev || sp.End > len(runes) {
			continue
		}
		b.WriteString(string(runes[prev:sp.Start]))
		b.WriteString(sColorBoldRed)
		b.WriteString(string(runes[sp.Start:sp.End]))
		b.WriteString(sColorReset)
		prev = sp.End
	}
	b.WriteString(string(runes[prev:]))
	return b.String()
}

func searchCmd() *cobra.Command {
	var source, since string
	var limit int
	var here, asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across indexed conversations",
		Long: `One-shot search, ranked by relevance decayed with the age of the
matching message. Human-readable on a terminal, TSV when piped:
  sessionId, messageIdx, lastModified, source, project, summary, snippet

Recommended shell function for fzf users (add to .zshrc):
  rwf() {
    rewind search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'rewind show {1} --around {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --preview-debounce=150 \
      --bind 'enter:execute(rewind open {1} --hit {2})'
  }`,
		Args: cobra.ExactArgs(1),
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

			// freshen the index before querying; stale results are worse
			// than a short wait
			sched := index.NewScheduler(st, cfg.Roots.Claude, cfg.Roots.Codex)
			if _, err := sched.Run(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "warning: index pass failed: %v\n", err)
			}

			opts := searchOptions(cfg)
			opts.Query = args[0]
			opts.Source = source
			if limit > 0 {
				opts.Limit = limit
			}
			if here {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.Scope = cwd
			}
			if since != "" {
				cutoff, err := search.ParseSince(since, time.Now())
				if err != nil {
					return err
				}
				opts.Since = cutoff
			}

			results, err := search.Run(st, opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			if term.IsTerminal(int(os.Stdout.Fd())) {
				printAligned(results)
				return nil
			}
			printTSV(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Filter by source (claude/codex)")
	cmd.Flags().StringVar(&since, "since", "", "Only sessions modified since (e.g. \"3 days ago\", \"2026-08-01\")")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results (0 = config default)")
	cmd.Flags().BoolVar(&here, "here", false, "Only sessions from the current directory tree")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")

	return cmd
}

func printAligned(results []search.Result) {
	for i, r := range results {
		if i > 0 {
			fmt.Println()
		}
		project := r.ProjectPath
		if project == "" {
			project = "-"
		}
		fmt.Printf("%s  %s%s%s  %s\n",
			colorizeSource(r.Source),
			sColorDim, r.LastModified.Local().Format("2006-01-02 15:04"), sColorReset,
			project,
		)
		fmt.Printf("  %s\n", oneLine(r.Summary))
		fmt.Printf("  %s%s\n", colorizeSnippet(oneLine(r.Snippet), r.Highlights), sColorReset)
		fmt.Printf("  %sresume: rewind resume %s%s\n", sColorDim, r.SessionID, sColorReset)
	}
}

// printTSV writes one row per result. The first two fields stay plain so
// fzf placeholders {1} {2} pick them up.
func printTSV(results []search.Result) {
	for _, r := range results {
		project := r.ProjectPath
		if project == "" {
			project = "-"
		}
		fmt.Printf("%s\t%d\t%s%s%s\t%s\t%s\t%s\t%s\n",
			r.SessionID,
			r.MessageIdx,
			sColorDim, r.LastModified.Format("2006-01-02 15:04"), sColorReset,
			colorizeSource(r.Source),
			project,
			oneLine(r.Summary),
			colorizeSnippet(oneLine(r.Snippet), r.Highlights),
		)
	}
}

func oneLine(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
