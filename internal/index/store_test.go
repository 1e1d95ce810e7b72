package index

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewind-cli/rewind/internal/parse"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testSession(id string, lastMod time.Time, contents ...string) *parse.Session {
	s := &parse.Session{
		ID:           id,
		Source:       parse.SourceClaude,
		FilePath:     "/transcripts/" + id + ".jsonl",
		ProjectPath:  "/home/dev/proj",
		LastModified: lastMod,
	}
	for i, c := range contents {
		s.Messages = append(s.Messages, parse.Message{
			Index:      i,
			Role:       parse.RoleUser,
			Kind:       parse.KindText,
			Content:    c,
			Timestamp:  lastMod,
			LineNumber: i + 1,
		})
	}
	if len(contents) > 0 {
		s.Summary = contents[0]
	}
	return s
}

func TestUpsertAndCounts(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now, "first message", "second message", "third message")))

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 1, sessions)

	messages, err := st.MessageCount()
	require.NoError(t, err)
	require.Equal(t, 3, messages)

	fts, err := st.FTSCount()
	require.NoError(t, err)
	require.Equal(t, 3, fts)

	row, err := st.SessionByID("claude:proj/a")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "claude", row.Source)
	require.Equal(t, "/home/dev/proj", row.ProjectPath)
	require.Equal(t, "first message", row.Summary)
	require.Equal(t, 3, row.MessageCount)
	require.Equal(t, now.Unix(), row.LastModified)
}

func TestUpsertReplacesPreviousState(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now,
		"alpha", "bravo", "charlie", "delta", "echo")))
	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now, "alpha", "foxtrot")))

	messages, err := st.MessageCount()
	require.NoError(t, err)
	require.Equal(t, 2, messages)

	row, err := st.SessionByID("claude:proj/a")
	require.NoError(t, err)
	require.Equal(t, 2, row.MessageCount)

	// dropped messages must be gone from the full-text table too
	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	docs, err := sn.SearchDocs("charlie", 10, DocFilter{})
	require.NoError(t, err)
	require.Empty(t, docs)

	docs, err = sn.SearchDocs("foxtrot", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestUpsertIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	sess := testSession("claude:proj/a", time.Now(), "unique marmoset phrase", "another line")

	require.NoError(t, st.UpsertSession(sess))
	require.NoError(t, st.UpsertSession(sess))
	require.NoError(t, st.UpsertSession(sess))

	messages, err := st.MessageCount()
	require.NoError(t, err)
	require.Equal(t, 2, messages)

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	docs, err := sn.SearchDocs("marmoset", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestSnapshotDoesNotSeeLaterWrites(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now, "before snapshot")))

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/b", now, "after snapshot")))
	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now, "rewritten")))

	n, err := sn.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	docs, err := sn.SearchDocs("snapshot", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "before snapshot", docs[0].Content)

	sn2, err := st.Snapshot()
	require.NoError(t, err)
	defer sn2.Close()

	n, err = sn2.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSessionByIDMissing(t *testing.T) {
	st := newTestStore(t)
	row, err := st.SessionByID("claude:nope")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestFileMetaRoundTrip(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetFileMeta("/transcripts/a.jsonl", 1000, 64))
	require.NoError(t, st.SetFileMeta("/transcripts/b.jsonl", 2000, 128))
	require.NoError(t, st.SetFileMeta("/transcripts/a.jsonl", 3000, 96))

	meta, err := st.AllFileMeta()
	require.NoError(t, err)
	require.Len(t, meta, 2)
	require.Equal(t, int64(3000), meta["/transcripts/a.jsonl"].Mtime)
	require.Equal(t, int64(96), meta["/transcripts/a.jsonl"].Size)
	require.Equal(t, int64(2000), meta["/transcripts/b.jsonl"].Mtime)
}

func TestPruneMissing(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	for _, id := range []string{"claude:proj/a", "claude:proj/b", "claude:proj/c"} {
		sess := testSession(id, now, "content of "+id)
		require.NoError(t, st.UpsertSession(sess))
		require.NoError(t, st.SetFileMeta(sess.FilePath, now.Unix(), 100))
	}

	seen := map[string]struct{}{
		"/transcripts/claude:proj/a.jsonl": {},
		"/transcripts/claude:proj/c.jsonl": {},
	}
	pruned, err := st.PruneMissing(seen)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 2, sessions)

	row, err := st.SessionByID("claude:proj/b")
	require.NoError(t, err)
	require.Nil(t, row)

	meta, err := st.AllFileMeta()
	require.NoError(t, err)
	require.Len(t, meta, 2)

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()
	docs, err := sn.SearchDocs(`"proj/b"`, 10, DocFilter{})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestOpenRebuildsCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o644))

	st, err := Open(path)
	require.NoError(t, err)
	defer st.Close()
	require.True(t, st.Rebuilt)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 0, sessions)

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", time.Now(), "fresh start")))
}

func TestOpenRebuildsOnSchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", time.Now(), "old data")))
	require.NoError(t, st.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE meta SET value = '0' WHERE key = 'schema_version'")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	require.True(t, st.Rebuilt)

	sessions, err := st.SessionCount()
	require.NoError(t, err)
	require.Equal(t, 0, sessions)
}

func TestMessagesWindow(t *testing.T) {
	st := newTestStore(t)
	sess := testSession("claude:proj/a", time.Now(),
		"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9")
	require.NoError(t, st.UpsertSession(sess))

	msgs, hitPos, before, after, err := st.MessagesWindow("claude:proj/a", 5, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.Equal(t, "m3", msgs[0].Content)
	require.Equal(t, "m7", msgs[4].Content)
	require.Equal(t, 2, hitPos)
	require.Equal(t, 3, before)
	require.Equal(t, 2, after)

	// hit near the start clamps the window
	msgs, hitPos, before, after, err = st.MessagesWindow("claude:proj/a", 0, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, 0, hitPos)
	require.Equal(t, 0, before)
	require.Equal(t, 7, after)

	// no hit loads the whole session
	msgs, hitPos, before, after, err = st.MessagesWindow("claude:proj/a", -1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	require.Equal(t, -1, hitPos)
	require.Zero(t, before)
	require.Zero(t, after)

	// negative context means no windowing, hit position preserved
	msgs, hitPos, _, _, err = st.MessagesWindow("claude:proj/a", 6, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	require.Equal(t, 6, hitPos)

	// stale hit index beyond the session falls back to the whole session
	msgs, hitPos, _, _, err = st.MessagesWindow("claude:proj/a", 42, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	require.Equal(t, -1, hitPos)
}

func TestSearchDocsFilters(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()
	old := now.Add(-30 * 24 * time.Hour)

	a := testSession("claude:proj/a", now, "needle in project one")
	a.ProjectPath = "/home/dev/proj"
	require.NoError(t, st.UpsertSession(a))

	b := testSession("claude:other/b", now, "needle in project two")
	b.ProjectPath = "/home/dev/proj2"
	require.NoError(t, st.UpsertSession(b))

	c := testSession("codex:rollout-c", old, "needle in codex land")
	c.Source = parse.SourceCodex
	c.ProjectPath = "/home/dev/proj/sub"
	require.NoError(t, st.UpsertSession(c))

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	docs, err := sn.SearchDocs("needle", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	docs, err = sn.SearchDocs("needle", 10, DocFilter{Source: "codex"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "codex:rollout-c", docs[0].SessionID)

	// scope matches the project itself and its subtree, not siblings
	docs, err = sn.SearchDocs("needle", 10, DocFilter{Scope: "/home/dev/proj"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		require.NotEqual(t, "claude:other/b", d.SessionID)
	}

	docs, err = sn.SearchDocs("needle", 10, DocFilter{Since: now.Add(-time.Hour).Unix()})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		require.NotEqual(t, "codex:rollout-c", d.SessionID)
	}
}

func TestSearchDocsRelevance(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now,
		"kubernetes kubernetes kubernetes deployment", "unrelated chatter about lunch")))

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	docs, err := sn.SearchDocs("kubernetes", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Greater(t, docs[0].Relevance, 0.0)
	require.Equal(t, 0, docs[0].MessageIdx)
}

func TestLikeDocs(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertSession(testSession("claude:proj/a", now, "日本語のテストです")))
	require.NoError(t, st.UpsertSession(testSession("claude:proj/b", now, "plain english here")))

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	docs, err := sn.LikeDocs("日本語", 10, DocFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "claude:proj/a", docs[0].SessionID)
	require.Equal(t, 1.0, docs[0].Relevance)

	// LIKE metacharacters in the needle are literals, not wildcards
	docs, err = sn.LikeDocs("100%", 10, DocFilter{})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestRecentSessions(t *testing.T) {
	st := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"claude:proj/a", "claude:proj/b", "claude:proj/c"} {
		require.NoError(t, st.UpsertSession(testSession(id, base.Add(time.Duration(i)*time.Minute), "hello from "+id)))
	}

	sn, err := st.Snapshot()
	require.NoError(t, err)
	defer sn.Close()

	rows, err := sn.RecentSessions(2, DocFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "claude:proj/c", rows[0].ID)
	require.Equal(t, "claude:proj/b", rows[1].ID)
}
