package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/rewind-cli/rewind/internal/logging"
	"github.com/rewind-cli/rewind/internal/parse"
	"github.com/rewind-cli/rewind/internal/scan"
	"golang.org/x/sync/errgroup"
)

var schedLog = logging.ForComponent(logging.CompScheduler)

// State is the scheduler's phase within a pass.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateIndexing
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateIndexing:
		return "indexing"
	case StateCommitting:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventKind discriminates progress events.
type EventKind int

const (
	// EventRebuild reports that the on-disk index was discarded and the
	// pass is rebuilding from scratch.
	EventRebuild EventKind = iota
	// EventProgress reports one file committed.
	EventProgress
	// EventFileFailed reports one file skipped after a parse or write
	// error. The pass continues.
	EventFileFailed
	// EventCompleted reports the end of a pass, with its Stats.
	EventCompleted
	// EventFailed reports a pass aborted by a non-file error.
	EventFailed
)

// Event is one progress report. Delivery is best-effort: when nobody is
// draining the channel the oldest unread event is dropped.
type Event struct {
	Kind        EventKind
	FilesTotal  int
	FilesDone   int
	CurrentFile string
	Err         error
	Stats       Stats
}

// Stats summarizes one indexing pass.
type Stats struct {
	Scanned int
	Updated int
	Skipped int
	Pruned  int
	Errors  int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d pruned=%d errors=%d",
		s.Scanned, s.Updated, s.Skipped, s.Pruned, s.Errors)
}

const eventBuffer = 16

// parseAhead is the batch size for concurrent parsing. Parsing runs ahead of
// the single writer, commits stay in work-list order.
const parseAhead = 8

// Scheduler turns transcript roots into index state, one pass at a time. A
// pass scans the roots, diffs against stored file metadata, parses what
// changed, and commits per file. Passes are meant to run sequentially; the
// store's single write connection serializes them if they do not.
type Scheduler struct {
	store      *Store
	claudeRoot string
	codexRoot  string
	events     chan Event
	state      atomic.Int32

	notifiedRebuild bool
}

func NewScheduler(store *Store, claudeRoot, codexRoot string) *Scheduler {
	return &Scheduler{
		store:      store,
		claudeRoot: claudeRoot,
		codexRoot:  codexRoot,
		events:     make(chan Event, eventBuffer),
	}
}

// Events returns the progress stream shared by every pass of this scheduler.
func (sc *Scheduler) Events() <-chan Event { return sc.events }

// State reports the current phase.
func (sc *Scheduler) State() State { return State(sc.state.Load()) }

func (sc *Scheduler) emit(e Event) {
	for {
		select {
		case sc.events <- e:
			return
		default:
		}
		select {
		case <-sc.events:
		default:
		}
	}
}

func (sc *Scheduler) fail(stats Stats, err error) (Stats, error) {
	schedLog.Error("pass failed", "error", err)
	sc.emit(Event{Kind: EventFailed, Err: err, Stats: stats})
	return stats, err
}

// Run executes one pass. Changed files are committed most-recent-first so
// fresh sessions become searchable before the pass finishes. Cancellation
// takes effect between files; a file's upsert is never abandoned midway.
func (sc *Scheduler) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	sc.state.Store(int32(StateScanning))
	defer sc.state.Store(int32(StateIdle))

	if sc.store.Rebuilt && !sc.notifiedRebuild {
		sc.notifiedRebuild = true
		schedLog.Warn("index was rebuilt, reindexing every transcript", "path", sc.store.Path())
		sc.emit(Event{Kind: EventRebuild})
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	files, err := scan.Roots(sc.claudeRoot, sc.codexRoot)
	if err != nil {
		return sc.fail(stats, fmt.Errorf("scan roots: %w", err))
	}
	stats.Scanned = len(files)

	known, err := sc.store.AllFileMeta()
	if err != nil {
		return sc.fail(stats, fmt.Errorf("load file metadata: %w", err))
	}

	seen := make(map[string]struct{}, len(files))
	var work []scan.FileInfo
	for _, fi := range files {
		seen[fi.Path] = struct{}{}
		if m, ok := known[fi.Path]; ok && m.Mtime == fi.Mtime.Unix() && m.Size == fi.Size {
			stats.Skipped++
			continue
		}
		work = append(work, fi)
	}

	sort.Slice(work, func(i, j int) bool { return work[i].Mtime.After(work[j].Mtime) })

	schedLog.Info("pass starting", "scanned", len(files), "changed", len(work))
	sc.state.Store(int32(StateIndexing))

	processed := 0
	for start := 0; start < len(work); start += parseAhead {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := start + parseAhead
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		parsed := make([]*parse.Session, len(batch))
		parseErrs := make([]error, len(batch))
		var g errgroup.Group
		g.SetLimit(runtime.NumCPU())
		for i, fi := range batch {
			g.Go(func() error {
				root := sc.claudeRoot
				if fi.Source == parse.SourceCodex {
					root = sc.codexRoot
				}
				parsed[i], parseErrs[i] = parse.File(fi.Path, fi.Source, root)
				return nil
			})
		}
		g.Wait()

		for i, fi := range batch {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			processed++

			if parseErrs[i] != nil {
				stats.Errors++
				schedLog.Warn("skipping file", "file", fi.Path, "error", parseErrs[i])
				sc.emit(Event{Kind: EventFileFailed, FilesTotal: len(work), FilesDone: processed, CurrentFile: fi.Path, Err: parseErrs[i]})
				continue
			}
			if err := sc.store.UpsertSession(parsed[i]); err != nil {
				stats.Errors++
				schedLog.Error("index write failed", "file", fi.Path, "error", err)
				sc.emit(Event{Kind: EventFileFailed, FilesTotal: len(work), FilesDone: processed, CurrentFile: fi.Path, Err: err})
				continue
			}
			// metadata only after the commit: a failed file stays absent
			// from the files table and is retried next pass
			if err := sc.store.SetFileMeta(fi.Path, fi.Mtime.Unix(), fi.Size); err != nil {
				stats.Errors++
				schedLog.Error("file metadata write failed", "file", fi.Path, "error", err)
				sc.emit(Event{Kind: EventFileFailed, FilesTotal: len(work), FilesDone: processed, CurrentFile: fi.Path, Err: err})
				continue
			}
			stats.Updated++
			sc.emit(Event{Kind: EventProgress, FilesTotal: len(work), FilesDone: processed, CurrentFile: fi.Path})
		}
	}

	sc.state.Store(int32(StateCommitting))
	pruned, err := sc.store.PruneMissing(seen)
	if err != nil {
		return sc.fail(stats, fmt.Errorf("prune: %w", err))
	}
	stats.Pruned = pruned

	schedLog.Info("pass complete", "stats", stats.String())
	sc.emit(Event{Kind: EventCompleted, FilesTotal: len(work), FilesDone: processed, Stats: stats})
	return stats, nil
}
