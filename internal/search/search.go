package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rewind-cli/rewind/internal/index"
)

// Options controls one query. Zero values fall back to the defaults below,
// which mirror the config file defaults.
type Options struct {
	Query        string
	Limit        int
	Overfetch    int
	HalfLifeDays float64
	SnippetWidth int

	// filters
	Source string
	Scope  string
	Since  time.Time

	// Now anchors recency scoring; zero means wall clock.
	Now time.Time
}

const (
	defaultLimit        = 20
	defaultOverfetch    = 5
	defaultHalfLifeDays = 7.0
	defaultSnippetWidth = 160
)

// Result is one ranked search hit: the best-scoring message of a session,
// with a highlighted preview. Score blends relevance and recency; absolute
// values are only comparable within a single query.
type Result struct {
	SessionID    string    `json:"session_id"`
	Source       string    `json:"source"`
	ProjectPath  string    `json:"project_path"`
	Summary      string    `json:"summary"`
	FilePath     string    `json:"file_path"`
	LastModified time.Time `json:"last_modified"`

	MessageIdx int       `json:"message_idx"`
	LineNumber int       `json:"line_number"`
	Role       string    `json:"role"`
	Kind       string    `json:"kind"`
	TS         time.Time `json:"ts"`

	Snippet    string  `json:"snippet"`
	Highlights []Span  `json:"highlights"`
	Score      float64 `json:"score"`
	Relevance  float64 `json:"relevance"`
}

// QueryError reports a query string the full-text grammar rejected, as
// opposed to a query that simply matched nothing.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("malformed query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Run executes one query against a fresh snapshot of the store. An empty or
// blank query returns no results and no error.
func Run(st *index.Store, opts Options) ([]Result, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, nil
	}

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = defaultOverfetch
	}
	if opts.HalfLifeDays <= 0 {
		opts.HalfLifeDays = defaultHalfLifeDays
	}
	if opts.SnippetWidth <= 0 {
		opts.SnippetWidth = defaultSnippetWidth
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	sn, err := st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer sn.Close()

	filter := index.DocFilter{
		Source: opts.Source,
		Scope:  opts.Scope,
	}
	if !opts.Since.IsZero() {
		filter.Since = opts.Since.Unix()
	}

	// over-fetch so dedup by session does not starve the final page
	fetch := opts.Limit * opts.Overfetch

	var docs []index.Doc
	if containsCJK(query) {
		// FTS tokenization splits CJK text poorly; substring match instead
		docs, err = sn.LikeDocs(query, fetch, filter)
	} else {
		docs, err = sn.SearchDocs(query, fetch, filter)
	}
	if err != nil {
		return nil, classify(query, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	// score, then collapse to the best message per session
	best := make(map[string]scored, len(docs))
	for _, d := range docs {
		s := score(d, now, opts.HalfLifeDays)
		prev, ok := best[d.SessionID]
		if !ok || s.final > prev.final || (s.final == prev.final && s.ts.After(prev.ts)) {
			best[d.SessionID] = s
		}
	}

	survivors := make([]scored, 0, len(best))
	for _, s := range best {
		survivors = append(survivors, s)
	}
	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.final != b.final {
			return a.final > b.final
		}
		if a.doc.LastModified != b.doc.LastModified {
			return a.doc.LastModified > b.doc.LastModified
		}
		return a.doc.SessionID < b.doc.SessionID
	})

	if len(survivors) > opts.Limit {
		survivors = survivors[:opts.Limit]
	}

	results := make([]Result, 0, len(survivors))
	for _, s := range survivors {
		d := s.doc
		snippet, spans := Extract(d.Content, query, opts.SnippetWidth)
		results = append(results, Result{
			SessionID:    d.SessionID,
			Source:       d.Source,
			ProjectPath:  d.ProjectPath,
			Summary:      d.Summary,
			FilePath:     d.FilePath,
			LastModified: time.Unix(d.LastModified, 0),
			MessageIdx:   d.MessageIdx,
			LineNumber:   d.LineNumber,
			Role:         d.Role,
			Kind:         d.Kind,
			TS:           s.ts,
			Snippet:      snippet,
			Highlights:   spans,
			Score:        s.final,
			Relevance:    d.Relevance,
		})
	}
	return results, nil
}

type scored struct {
	doc   index.Doc
	ts    time.Time
	final float64
}

// score applies the recency half-life to the store's relevance. Age is
// measured from the message's own timestamp, falling back to the session's
// last-modified time when the message has none.
func score(d index.Doc, now time.Time, halfLifeDays float64) scored {
	ts := d.TS
	if ts == 0 {
		ts = d.LastModified
	}
	t := time.Unix(ts, 0)

	ageDays := now.Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	weight := math.Pow(0.5, ageDays/halfLifeDays)
	return scored{doc: d, ts: t, final: d.Relevance * weight}
}

// classify separates grammar rejections from real store failures.
func classify(query string, err error) error {
	msg := err.Error()
	for _, marker := range []string{"fts5", "syntax error", "unterminated string", "no such column", "unknown special query"} {
		if strings.Contains(msg, marker) {
			return &QueryError{Query: query, Err: err}
		}
	}
	return err
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
