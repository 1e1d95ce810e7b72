package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func indexCmd() *cobra.Command {
	var rebuild, watch bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan and index Claude Code and Codex conversation logs",
		Long: `Runs one incremental indexing pass: transcripts whose mtime or size
changed since the last pass are re-parsed, everything else is skipped.
--rebuild drops the database first; --watch keeps running and re-triggers
a pass whenever the transcript directories change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if rebuild {
				if err := index.Remove(cfg.Index.Path); err != nil {
					return fmt.Errorf("drop index: %w", err)
				}
				fmt.Fprintln(os.Stderr, "Dropped index, re-indexing from scratch.")
			}

			st, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Fprintf(os.Stderr, "Scanning roots...\n")
			fmt.Fprintf(os.Stderr, "  Claude: %s\n", cfg.Roots.Claude)
			fmt.Fprintf(os.Stderr, "  Codex:  %s\n", cfg.Roots.Codex)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := index.NewScheduler(st, cfg.Roots.Claude, cfg.Roots.Codex)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				printProgress(ctx, sched.Events(), watch)
			}()

			stats, runErr := sched.Run(ctx)

			var watchErr error
			if runErr == nil && watch {
				fmt.Fprintln(os.Stderr, "Watching for changes (Ctrl-C to stop)...")
				watchErr = index.Watch(ctx, sched, cfg.Roots.Claude, cfg.Roots.Codex)
			}

			// cancel the printer before writing the closing line
			stop()
			wg.Wait()

			if runErr != nil {
				return fmt.Errorf("index: %w", runErr)
			}
			if watch {
				if watchErr != nil && ctx.Err() == nil {
					return watchErr
				}
				fmt.Fprintln(os.Stderr, "Stopped.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop the index and re-parse every transcript")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running, re-index on filesystem changes")

	return cmd
}

// printProgress renders scheduler events to stderr. On a terminal the
// counter overwrites itself in place. With persist set it keeps reporting
// across passes (watch mode) until ctx is cancelled; otherwise it returns
// after the first terminal event.
func printProgress(ctx context.Context, events <-chan index.Event, persist bool) {
	tty := term.IsTerminal(int(os.Stderr.Fd()))
	inPlace := false

	clearLine := func() {
		if inPlace {
			fmt.Fprint(os.Stderr, "\r\033[K")
			inPlace = false
		}
	}

	for {
		select {
		case <-ctx.Done():
			clearLine()
			return

		case e := <-events:
			switch e.Kind {
			case index.EventRebuild:
				clearLine()
				fmt.Fprintln(os.Stderr, "Index was unreadable, rebuilding from scratch.")

			case index.EventProgress:
				if !tty {
					continue
				}
				fmt.Fprintf(os.Stderr, "\r\033[K  %d/%d %s", e.FilesDone, e.FilesTotal, filepath.Base(e.CurrentFile))
				inPlace = true

			case index.EventFileFailed:
				clearLine()
				fmt.Fprintf(os.Stderr, "  skipped %s: %v\n", e.CurrentFile, e.Err)

			case index.EventCompleted:
				clearLine()
				if !persist {
					return
				}
				if e.Stats.Updated > 0 || e.Stats.Pruned > 0 || e.Stats.Errors > 0 {
					fmt.Fprintf(os.Stderr, "Pass complete. %s\n", e.Stats)
				}

			case index.EventFailed:
				clearLine()
				if !persist {
					return
				}
				fmt.Fprintf(os.Stderr, "Pass failed: %v\n", e.Err)
			}
		}
	}
}
