package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func claudeLine(text string) string {
	return fmt.Sprintf(`{"type":"user","timestamp":"2026-08-20T10:00:00Z","cwd":"/home/dev/proj","message":{"role":"user","content":%q}}`+"\n", text)
}

func newTestScheduler(t *testing.T) (*Scheduler, *Store, string, string) {
	t.Helper()
	st := newTestStore(t)
	claudeRoot := t.TempDir()
	codexRoot := t.TempDir()
	return NewScheduler(st, claudeRoot, codexRoot), st, claudeRoot, codexRoot
}

func drainEvents(sc *Scheduler) []Event {
	var out []Event
	for {
		select {
		case e := <-sc.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestRunIndexesBothRoots(t *testing.T) {
	sc, st, claudeRoot, codexRoot := newTestScheduler(t)

	writeTranscript(t, claudeRoot, "myproj/a.jsonl", claudeLine("hello from claude"))
	writeTranscript(t, claudeRoot, "otherproj/b.jsonl", claudeLine("second project"))
	writeTranscript(t, codexRoot,
		"2026/08/20/rollout-2026-08-20T10-00-00-0199a213-8ee2-7790-b32c-e8ba16246cd6.jsonl",
		`{"timestamp":"2026-08-20T10:00:00Z","type":"session_meta","payload":{"cwd":"/home/dev/tool"}}`+"\n"+
			`{"timestamp":"2026-08-20T10:00:05Z","type":"event_msg","payload":{"type":"user_message","message":"hello from codex"}}`+"\n")

	stats, err := sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Scanned)
	require.Equal(t, 3, stats.Updated)
	require.Zero(t, stats.Errors)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 3, sessions)

	row, err := st.SessionByID("claude:myproj/a")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "/home/dev/proj", row.ProjectPath)

	row, err = st.SessionByID("codex:2026/08/20/rollout-2026-08-20T10-00-00-0199a213-8ee2-7790-b32c-e8ba16246cd6")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "/home/dev/tool", row.ProjectPath)
}

func TestRunIsIncremental(t *testing.T) {
	sc, _, claudeRoot, _ := newTestScheduler(t)

	var paths []string
	for i := 0; i < 3; i++ {
		paths = append(paths, writeTranscript(t, claudeRoot,
			fmt.Sprintf("proj/s%d.jsonl", i), claudeLine(fmt.Sprintf("session %d", i))))
	}

	stats, err := sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Updated)

	stats, err = sc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Updated)
	require.Equal(t, 3, stats.Skipped)

	// touching one file re-indexes just that file
	future := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(paths[1], future, future))

	stats, err = sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Updated)
	require.Equal(t, 2, stats.Skipped)
}

func TestRunSkipsUnparsableFiles(t *testing.T) {
	sc, st, claudeRoot, _ := newTestScheduler(t)

	for i := 0; i < 9; i++ {
		writeTranscript(t, claudeRoot, fmt.Sprintf("proj/good%d.jsonl", i),
			claudeLine(fmt.Sprintf("good session %d", i)))
	}
	bad := writeTranscript(t, claudeRoot, "proj/bad.jsonl", "this is not json\nneither is this\n")

	stats, err := sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, stats.Scanned)
	require.Equal(t, 9, stats.Updated)
	require.Equal(t, 1, stats.Errors)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 9, sessions)

	var failed []Event
	for _, e := range drainEvents(sc) {
		if e.Kind == EventFileFailed {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 1)
	require.Equal(t, bad, failed[0].CurrentFile)
	require.Error(t, failed[0].Err)

	// no metadata row was written for the failure, so it is retried
	stats, err = sc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Updated)
	require.Equal(t, 9, stats.Skipped)
	require.Equal(t, 1, stats.Errors)
}

func TestRunCommitsNewestFirst(t *testing.T) {
	sc, _, claudeRoot, _ := newTestScheduler(t)

	now := time.Now()
	oldest := writeTranscript(t, claudeRoot, "proj/oldest.jsonl", claudeLine("oldest"))
	middle := writeTranscript(t, claudeRoot, "proj/middle.jsonl", claudeLine("middle"))
	newest := writeTranscript(t, claudeRoot, "proj/newest.jsonl", claudeLine("newest"))
	require.NoError(t, os.Chtimes(oldest, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(middle, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newest, now, now))

	_, err := sc.Run(context.Background())
	require.NoError(t, err)

	var order []string
	for _, e := range drainEvents(sc) {
		if e.Kind == EventProgress {
			order = append(order, e.CurrentFile)
		}
	}
	require.Equal(t, []string{newest, middle, oldest}, order)
}

func TestRunPrunesDeletedFiles(t *testing.T) {
	sc, st, claudeRoot, _ := newTestScheduler(t)

	writeTranscript(t, claudeRoot, "proj/keep.jsonl", claudeLine("keep me"))
	gone := writeTranscript(t, claudeRoot, "proj/gone.jsonl", claudeLine("delete me"))

	_, err := sc.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))

	stats, err := sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pruned)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 1, sessions)

	row, err := st.SessionByID("claude:proj/gone")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestRunHonorsCancellation(t *testing.T) {
	sc, _, claudeRoot, _ := newTestScheduler(t)
	writeTranscript(t, claudeRoot, "proj/a.jsonl", claudeLine("hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := sc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, stats.Updated)
}

func TestRunEmitsRebuildOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.True(t, st.Rebuilt)

	sc := NewScheduler(st, t.TempDir(), t.TempDir())

	_, err = sc.Run(context.Background())
	require.NoError(t, err)
	events := drainEvents(sc)
	require.NotEmpty(t, events)
	require.Equal(t, EventRebuild, events[0].Kind)

	_, err = sc.Run(context.Background())
	require.NoError(t, err)
	for _, e := range drainEvents(sc) {
		require.NotEqual(t, EventRebuild, e.Kind)
	}
}

func TestEventsNeverBlockWithoutReader(t *testing.T) {
	sc, _, claudeRoot, _ := newTestScheduler(t)

	for i := 0; i < 25; i++ {
		writeTranscript(t, claudeRoot, fmt.Sprintf("proj/s%02d.jsonl", i),
			claudeLine(fmt.Sprintf("session number %d", i)))
	}

	// more events than the buffer holds; Run must still return
	stats, err := sc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 25, stats.Updated)

	events := drainEvents(sc)
	require.NotEmpty(t, events)
	require.LessOrEqual(t, len(events), eventBuffer)
	last := events[len(events)-1]
	require.Equal(t, EventCompleted, last.Kind)
	require.Equal(t, 25, last.Stats.Updated)
}
