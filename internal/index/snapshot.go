package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Snapshot is a point-in-time read view of the index. Queries through it see
// only state committed before it opened; a concurrent upsert becomes visible
// to the next snapshot, never partially to this one.
type Snapshot struct {
	tx *sql.Tx
}

// Snapshot opens a read view. Callers must Close it.
func (s *Store) Snapshot() (*Snapshot, error) {
	tx, err := s.read.Begin()
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	// a deferred transaction pins its WAL snapshot at the first read, so
	// issue one now rather than letting the view float until first use
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("pin snapshot: %w", err)
	}
	return &Snapshot{tx: tx}, nil
}

func (sn *Snapshot) Close() error {
	return sn.tx.Rollback()
}

// Doc is one scored candidate: a message joined with its session. Relevance
// is BM25-derived, higher is better, and comparable only within a single
// query.
type Doc struct {
	SessionID    string
	MessageIdx   int
	TS           int64
	Role         string
	Kind         string
	Content      string
	LineNumber   int
	Source       string
	FilePath     string
	ProjectPath  string
	Summary      string
	LastModified int64
	Relevance    float64
}

// DocFilter restricts queries to a source, a project subtree, or a minimum
// session last-modified time. Zero values mean no restriction.
type DocFilter struct {
	Source string
	Scope  string
	Since  int64
}

func (f DocFilter) where(conds []string, args []any) ([]string, []any) {
	if f.Source != "" {
		conds = append(conds, "s.source = ?")
		args = append(args, f.Source)
	}
	if f.Scope != "" {
		scope := strings.TrimRight(f.Scope, "/")
		conds = append(conds, "(s.project_path = ? OR s.project_path LIKE ?)")
		args = append(args, scope, scope+"/%")
	}
	if f.Since > 0 {
		conds = append(conds, "s.last_modified >= ?")
		args = append(args, f.Since)
	}
	return conds, args
}

const docCols = `m.session_id, m.message_idx, m.ts, m.role, m.kind, m.content, m.line_number,
       s.source, s.file_path, s.project_path, s.summary, s.last_modified`

// SearchDocs runs an FTS5 match and returns up to limit docs, best
// relevance first. bm25() scores lower-is-better, so it is negated here.
func (sn *Snapshot) SearchDocs(match string, limit int, f DocFilter) ([]Doc, error) {
	conds := []string{"messages_fts MATCH ?"}
	args := []any{match}
	conds, args = f.where(conds, args)
	args = append(args, limit)

	query := `
		SELECT ` + docCols + `, -bm25(messages_fts) AS relevance
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		JOIN sessions s ON s.session_id = m.session_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY relevance DESC
		LIMIT ?`

	rows, err := sn.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocs(rows)
}

// LikeDocs is the substring fallback for queries FTS tokenization handles
// poorly, such as unsegmented CJK text. Every match gets the same relevance
// so downstream ranking is driven by recency alone.
func (sn *Snapshot) LikeDocs(substr string, limit int, f DocFilter) ([]Doc, error) {
	conds := []string{`m.content LIKE ? ESCAPE '\'`}
	args := []any{"%" + escapeLike(substr) + "%"}
	conds, args = f.where(conds, args)
	args = append(args, limit)

	query := `
		SELECT ` + docCols + `, 1.0 AS relevance
		FROM messages m
		JOIN sessions s ON s.session_id = m.session_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY s.last_modified DESC, m.session_id, m.message_idx
		LIMIT ?`

	rows, err := sn.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocs(rows)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func scanDocs(rows *sql.Rows) ([]Doc, error) {
	var docs []Doc
	for rows.Next() {
		var d Doc
		err := rows.Scan(&d.SessionID, &d.MessageIdx, &d.TS, &d.Role, &d.Kind, &d.Content, &d.LineNumber,
			&d.Source, &d.FilePath, &d.ProjectPath, &d.Summary, &d.LastModified, &d.Relevance)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// RecentSessions lists sessions by last-modified time, newest first.
func (sn *Snapshot) RecentSessions(limit int, f DocFilter) ([]SessionRow, error) {
	conds, args := f.where(nil, nil)

	query := "SELECT " + sessionCols + " FROM sessions s"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_modified DESC, session_id LIMIT ?"
	args = append(args, limit)

	rows, err := sn.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		r, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SessionCount reports the sessions visible to this snapshot.
func (sn *Snapshot) SessionCount() (int, error) {
	var n int
	err := sn.tx.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}
