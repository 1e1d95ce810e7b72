package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rewind-cli/rewind/internal/logging"
	"golang.org/x/time/rate"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// watchDebounce batches the event bursts an agent produces while appending
// to a transcript into a single trigger.
const watchDebounce = time.Second

// minPassInterval caps how often filesystem events can start a pass.
const minPassInterval = 5 * time.Second

// Watch blocks until ctx is done, re-running scheduler passes as transcripts
// change under the roots. Directories that appear later, such as new project
// or date folders, are picked up from create events. File contents are never
// tailed; every trigger is an ordinary incremental pass.
func Watch(ctx context.Context, sc *Scheduler, roots ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	watching := 0
	for _, root := range roots {
		if root == "" {
			continue
		}
		n, err := addTree(w, root)
		if err != nil {
			watchLog.Warn("cannot watch root", "root", root, "error", err)
			continue
		}
		watching += n
	}
	watchLog.Info("watching", "dirs", watching)

	limiter := rate.NewLimiter(rate.Every(minPassInterval), 1)
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addTree(w, ev.Name)
				}
			}
			debounce.Reset(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			watchLog.Warn("watch error", "error", err)

		case <-debounce.C:
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			if _, err := sc.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				watchLog.Error("triggered pass failed", "error", err)
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			watchLog.Debug("watch add failed", "dir", path, "error", err)
			return nil
		}
		added++
		return nil
	})
	return added, err
}
