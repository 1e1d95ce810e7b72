package main

import (
	"context"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/rewind-cli/rewind/internal/config"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/logging"
	"github.com/rewind-cli/rewind/internal/open"
	"github.com/rewind-cli/rewind/internal/resume"
	"github.com/rewind-cli/rewind/internal/search"
	"github.com/rewind-cli/rewind/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	rootCmd := &cobra.Command{
		Use:     "rewind",
		Short:   "Search and resume past Claude Code and Codex conversations",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return cmd.Help()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			// index in the background while the TUI is already usable;
			// committed sessions show up as the pass progresses
			sched := index.NewScheduler(st, cfg.Roots.Claude, cfg.Roots.Codex)
			ctx, cancel := context.WithCancel(cmd.Context())
			done := make(chan struct{})
			go func() {
				defer close(done)
				sched.Run(ctx)
			}()

			sel, err := tui.Run(st, sched, "", searchOptions(cfg))

			// let the in-flight file finish its commit before acting
			cancel()
			<-done

			if err != nil {
				return err
			}
			return actOn(st, sel)
		},
	}

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(doctorCmd())

	err := rootCmd.Execute()
	logging.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and brings up file logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Logging)
	return cfg, nil
}

func searchOptions(cfg *config.Config) search.Options {
	return search.Options{
		Limit:        cfg.Search.Limit,
		Overfetch:    cfg.Search.Overfetch,
		HalfLifeDays: cfg.Search.HalfLifeDays,
		SnippetWidth: cfg.Search.SnippetWidth,
	}
}

// actOn carries out the action chosen in the TUI. A nil selection means the
// user just quit.
func actOn(st *index.Store, sel *tui.Selection) error {
	if sel == nil || sel.Action == tui.ActionNone {
		return nil
	}

	switch sel.Action {
	case tui.ActionOpen:
		return open.Session(st, sel.SessionID, sel.MessageIdx)

	case tui.ActionResume, tui.ActionCopy:
		row, err := st.SessionByID(sel.SessionID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("session not found: %s", sel.SessionID)
		}
		inv, err := resume.For(row)
		if err != nil {
			return err
		}
		if sel.Action == tui.ActionCopy {
			if err := clipboard.WriteAll(inv.String()); err != nil {
				// no clipboard on this terminal; print so it can be pasted
				cliLog.Debug("clipboard unavailable", "error", err)
				fmt.Println(inv.String())
				return nil
			}
			fmt.Fprintf(os.Stderr, "Copied: %s\n", inv.String())
			return nil
		}
		cliLog.Info("resuming session", "session", sel.SessionID)
		return inv.Run()
	}
	return nil
}
