package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/parse"
	"github.com/stretchr/testify/require"
)

var anchor = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *index.Store {
	t.Helper()
	st, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type msg struct {
	ts   time.Time
	text string
}

func mkSession(id string, lastMod time.Time, msgs ...msg) *parse.Session {
	sess := &parse.Session{
		ID:           id,
		Source:       parse.SourceClaude,
		FilePath:     "/transcripts/" + id + ".jsonl",
		ProjectPath:  "/home/dev/proj",
		LastModified: lastMod,
	}
	for i, m := range msgs {
		sess.Messages = append(sess.Messages, parse.Message{
			Index:      i,
			Role:       parse.RoleUser,
			Kind:       parse.KindText,
			Content:    m.text,
			Timestamp:  m.ts,
			LineNumber: i + 1,
		})
	}
	return sess
}

func TestRunEmptyQuery(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor, msg{anchor, "some content"})))

	for _, q := range []string{"", "   ", "\t\n"} {
		results, err := Run(st, Options{Query: q, Now: anchor})
		require.NoError(t, err)
		require.Empty(t, results)
	}
}

func TestRunNoMatches(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor, msg{anchor, "talking about gophers"})))

	results, err := Run(st, Options{Query: "zebra", Now: anchor})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRunPrefersRecentMatches(t *testing.T) {
	st := newTestStore(t)
	old := anchor.Add(-14 * 24 * time.Hour)

	require.NoError(t, st.UpsertSession(mkSession("claude:p/recent", anchor,
		msg{anchor, "deploy script for the api"})))
	require.NoError(t, st.UpsertSession(mkSession("claude:p/old", old,
		msg{old, "deploy script for the api"})))

	results, err := Run(st, Options{Query: "deploy script", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "claude:p/recent", results[0].SessionID)
	require.Equal(t, "claude:p/old", results[1].SessionID)
	require.Contains(t, results[0].Snippet, "deploy")

	// equal relevance, so the scores differ only by the recency weight:
	// 0.5^0 = 1.0 against 0.5^(14/7) = 0.25
	require.InDelta(t, 4.0, results[0].Score/results[1].Score, 0.01)
}

func TestRunDedupKeepsMostRecentMatch(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor,
		msg{anchor.Add(-10 * 24 * time.Hour), "needle in a haystack"},
		msg{anchor.Add(-1 * 24 * time.Hour), "needle in a haystack"},
		msg{anchor.Add(-5 * 24 * time.Hour), "needle in a haystack"},
	)))

	results, err := Run(st, Options{Query: "needle", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].MessageIdx)
	require.Equal(t, anchor.Add(-1*24*time.Hour).Unix(), results[0].TS.Unix())
}

func TestRunTieBreaks(t *testing.T) {
	st := newTestStore(t)
	ts := anchor.Add(-time.Hour)

	// identical matches, so final scores tie; last-modified decides, then
	// the session ID keeps the order deterministic
	require.NoError(t, st.UpsertSession(mkSession("claude:p/b", anchor.Add(-2*time.Hour), msg{ts, "tied result"})))
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor.Add(-2*time.Hour), msg{ts, "tied result"})))
	require.NoError(t, st.UpsertSession(mkSession("claude:p/c", anchor.Add(-1*time.Hour), msg{ts, "tied result"})))

	results, err := Run(st, Options{Query: "tied", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "claude:p/c", results[0].SessionID)
	require.Equal(t, "claude:p/a", results[1].SessionID)
	require.Equal(t, "claude:p/b", results[2].SessionID)
}

func TestRunAppliesLimit(t *testing.T) {
	st := newTestStore(t)
	ids := []string{"claude:p/s0", "claude:p/s1", "claude:p/s2", "claude:p/s3", "claude:p/s4"}
	for i, id := range ids {
		ts := anchor.Add(-time.Duration(i) * 24 * time.Hour)
		require.NoError(t, st.UpsertSession(mkSession(id, ts, msg{ts, "common keyword"})))
	}

	results, err := Run(st, Options{Query: "keyword", Limit: 2, Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "claude:p/s0", results[0].SessionID)
	require.Equal(t, "claude:p/s1", results[1].SessionID)
}

func TestRunFilters(t *testing.T) {
	st := newTestStore(t)
	old := anchor.Add(-20 * 24 * time.Hour)

	claude := mkSession("claude:p/a", anchor, msg{anchor, "shared needle"})
	require.NoError(t, st.UpsertSession(claude))

	codex := mkSession("codex:rollout-b", anchor, msg{anchor, "shared needle"})
	codex.Source = parse.SourceCodex
	codex.ProjectPath = "/home/dev/proj/sub"
	require.NoError(t, st.UpsertSession(codex))

	sibling := mkSession("claude:q/c", old, msg{old, "shared needle"})
	sibling.ProjectPath = "/home/dev/proj2"
	require.NoError(t, st.UpsertSession(sibling))

	results, err := Run(st, Options{Query: "needle", Source: "codex", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "codex:rollout-b", results[0].SessionID)

	results, err = Run(st, Options{Query: "needle", Scope: "/home/dev/proj", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotEqual(t, "claude:q/c", r.SessionID)
	}

	results, err = Run(st, Options{Query: "needle", Since: anchor.Add(-7 * 24 * time.Hour), Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotEqual(t, "claude:q/c", r.SessionID)
	}
}

func TestRunMalformedQuery(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor, msg{anchor, "some content"})))

	for _, q := range []string{`"unbalanced`, "AND alone", "(dangling"} {
		_, err := Run(st, Options{Query: q, Now: anchor})
		var qerr *QueryError
		require.ErrorAs(t, err, &qerr, "query %q", q)
		require.Equal(t, q, qerr.Query)
	}
}

func TestRunCJKSubstring(t *testing.T) {
	st := newTestStore(t)
	old := anchor.Add(-10 * 24 * time.Hour)

	require.NoError(t, st.UpsertSession(mkSession("claude:p/new", anchor, msg{anchor, "日本語のデプロイ手順"})))
	require.NoError(t, st.UpsertSession(mkSession("claude:p/old", old, msg{old, "日本語の古いメモ"})))

	results, err := Run(st, Options{Query: "日本語", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "claude:p/new", results[0].SessionID)
	require.Equal(t, 1.0, results[0].Relevance)
	require.Greater(t, results[0].Score, results[1].Score)

	results, err = Run(st, Options{Query: "存在しない", Now: anchor})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRunHalfLifeIsConfigurable(t *testing.T) {
	st := newTestStore(t)
	old := anchor.Add(-14 * 24 * time.Hour)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", old, msg{old, "aging content"})))

	short, err := Run(st, Options{Query: "aging", HalfLifeDays: 7, Now: anchor})
	require.NoError(t, err)
	require.Len(t, short, 1)

	long, err := Run(st, Options{Query: "aging", HalfLifeDays: 14, Now: anchor})
	require.NoError(t, err)
	require.Len(t, long, 1)

	// 14 days is two short half-lives but only one long one
	require.InDelta(t, 2.0, long[0].Score/short[0].Score, 0.01)
}

func TestRunUnicodeQuery(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertSession(mkSession("claude:p/a", anchor,
		msg{anchor, "we compared café ☕ search behavior across terminals"})))

	results, err := Run(st, Options{Query: "café", Now: anchor})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Snippet, "café ☕")
	require.NotEmpty(t, results[0].Highlights)

	runes := []rune(results[0].Snippet)
	span := results[0].Highlights[0]
	require.Equal(t, "café", string(runes[span.Start:span.End]))
}
