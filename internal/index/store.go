package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewind-cli/rewind/internal/logging"
	"github.com/rewind-cli/rewind/internal/parse"
	_ "modernc.org/sqlite"
)

var storeLog = logging.ForComponent(logging.CompStore)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    source        TEXT NOT NULL,
    file_path     TEXT NOT NULL,
    project_path  TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL DEFAULT 0,
    updated_at    INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    message_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sessions_last_modified ON sessions(last_modified);

CREATE TABLE IF NOT EXISTS messages (
    session_id  TEXT NOT NULL,
    message_idx INTEGER NOT NULL,
    ts          INTEGER NOT NULL DEFAULT 0,
    role        TEXT NOT NULL,
    kind        TEXT NOT NULL DEFAULT 'text',
    content     TEXT NOT NULL,
    line_number INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, message_idx)
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    content=messages,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
    INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS files (
    path       TEXT PRIMARY KEY,
    mtime      INTEGER NOT NULL DEFAULT 0,
    size       INTEGER NOT NULL DEFAULT 0,
    indexed_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// schemaVersion forces a full rebuild, and therefore a re-parse of every
// transcript, when the stored shape changes.
const schemaVersion = "1"

var errSchemaVersion = errors.New("schema version mismatch")

// Store wraps the on-disk index: the FTS table over per-message documents,
// the session rows they reference, and the per-file metadata that drives
// incremental indexing.
//
// Writes go through a single connection and belong to the Scheduler alone.
// Queries use a separate read pool, inside a Snapshot when consistency
// matters.
type Store struct {
	write *sql.DB
	read  *sql.DB
	path  string

	// Rebuilt is set when Open discarded an unreadable or outdated database
	// and started empty. The Scheduler surfaces it as a rebuild event.
	Rebuilt bool
}

// Open opens or creates the index at path. An unreadable or incompatible
// database is removed and recreated empty rather than reported as an error;
// the Rebuilt flag records that this happened.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	st := &Store{path: path}
	if err := st.open(); err != nil {
		storeLog.Warn("discarding unusable index", "path", path, "error", err)
		st.Close()
		if err := removeDatabase(path); err != nil {
			return nil, fmt.Errorf("remove unusable index: %w", err)
		}
		st.Rebuilt = true
		if err := st.open(); err != nil {
			return nil, fmt.Errorf("recreate index: %w", err)
		}
	}
	return st, nil
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"
}

func (s *Store) open() error {
	write, err := sql.Open("sqlite", dsn(s.path))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	write.SetMaxOpenConns(1)
	s.write = write

	if _, err := write.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	var check string
	if err := write.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		return fmt.Errorf("integrity probe: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("integrity probe: %s", check)
	}
	var n int
	if err := write.QueryRow("SELECT COUNT(*) FROM messages_fts").Scan(&n); err != nil {
		return fmt.Errorf("fts probe: %w", err)
	}

	var ver string
	err = write.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := write.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case ver != schemaVersion:
		return fmt.Errorf("%w: have %s, want %s", errSchemaVersion, ver, schemaVersion)
	}

	read, err := sql.Open("sqlite", dsn(s.path))
	if err != nil {
		return fmt.Errorf("open read pool: %w", err)
	}
	read.SetMaxOpenConns(4)
	s.read = read
	return nil
}

func removeDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Remove deletes the database files for the index at path.
func Remove(path string) error {
	return removeDatabase(path)
}

func (s *Store) Close() error {
	var firstErr error
	if s.read != nil {
		if err := s.read.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.read = nil
	}
	if s.write != nil {
		s.write.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		if err := s.write.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.write = nil
	}
	return firstErr
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// UpsertSession replaces all indexed state for the session in one commit:
// delete every row for its ID, insert the fresh parse, commit. Readers on a
// snapshot never see the intermediate state.
func (s *Store) UpsertSession(sess *parse.Session) error {
	tx, err := s.write.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, source, file_path, project_path, summary, created_at, updated_at, last_modified, message_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		string(sess.Source),
		sess.FilePath,
		sess.ProjectPath,
		sess.Summary,
		unix(sess.CreatedAt),
		unix(sess.UpdatedAt),
		unix(sess.LastModified),
		len(sess.Messages),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (session_id, message_idx, ts, role, kind, content, line_number)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer stmt.Close()

	for _, m := range sess.Messages {
		kind := m.Kind
		if kind == "" {
			kind = parse.KindText
		}
		if _, err := stmt.Exec(sess.ID, m.Index, unix(m.Timestamp), m.Role, kind, m.Content, m.LineNumber); err != nil {
			return fmt.Errorf("insert message %d: %w", m.Index, err)
		}
	}

	return tx.Commit()
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// FileMeta is the per-file record that decides whether a transcript needs
// re-parsing. Rows exist only for fully committed files.
type FileMeta struct {
	Mtime     int64
	Size      int64
	IndexedAt int64
}

func (s *Store) AllFileMeta() (map[string]FileMeta, error) {
	rows, err := s.read.Query("SELECT path, mtime, size, indexed_at FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]FileMeta)
	for rows.Next() {
		var path string
		var m FileMeta
		if err := rows.Scan(&path, &m.Mtime, &m.Size, &m.IndexedAt); err != nil {
			return nil, err
		}
		meta[path] = m
	}
	return meta, rows.Err()
}

// SetFileMeta records a fully committed file. Called by the Scheduler after
// the session's upsert succeeds, never before.
func (s *Store) SetFileMeta(path string, mtime, size int64) error {
	_, err := s.write.Exec(
		`INSERT INTO files (path, mtime, size, indexed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, size = excluded.size, indexed_at = excluded.indexed_at`,
		path, mtime, size, time.Now().Unix(),
	)
	return err
}

// PruneMissing removes sessions and file metadata for transcripts that no
// longer exist under the roots. seen holds every path the scan found,
// including unchanged ones.
func (s *Store) PruneMissing(seen map[string]struct{}) (int, error) {
	rows, err := s.read.Query("SELECT session_id, file_path FROM sessions")
	if err != nil {
		return 0, err
	}
	type pair struct{ id, path string }
	var stale []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.path); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := seen[p.path]; !ok {
			stale = append(stale, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	pruned := 0
	for _, p := range stale {
		if err := s.deleteSession(p.id, p.path); err != nil {
			return pruned, err
		}
		pruned++
	}

	// metadata rows can outlive their session when a file disappears
	// between failure and rescan
	paths, err := s.read.Query("SELECT path FROM files")
	if err != nil {
		return pruned, err
	}
	var orphans []string
	for paths.Next() {
		var p string
		if err := paths.Scan(&p); err != nil {
			paths.Close()
			return pruned, err
		}
		if _, ok := seen[p]; !ok {
			orphans = append(orphans, p)
		}
	}
	paths.Close()
	if err := paths.Err(); err != nil {
		return pruned, err
	}
	for _, p := range orphans {
		if _, err := s.write.Exec("DELETE FROM files WHERE path = ?", p); err != nil {
			return pruned, err
		}
	}

	return pruned, nil
}

func (s *Store) deleteSession(id, filePath string) error {
	tx, err := s.write.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", filePath); err != nil {
		return err
	}
	return tx.Commit()
}

// SessionRow is a stored session without its messages.
type SessionRow struct {
	ID           string
	Source       string
	FilePath     string
	ProjectPath  string
	Summary      string
	CreatedAt    int64
	UpdatedAt    int64
	LastModified int64
	MessageCount int
}

const sessionCols = "session_id, source, file_path, project_path, summary, created_at, updated_at, last_modified, message_count"

func scanSessionRow(row interface{ Scan(...any) error }) (*SessionRow, error) {
	var r SessionRow
	err := row.Scan(&r.ID, &r.Source, &r.FilePath, &r.ProjectPath, &r.Summary,
		&r.CreatedAt, &r.UpdatedAt, &r.LastModified, &r.MessageCount)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SessionByID returns the stored session, or nil when unknown.
func (s *Store) SessionByID(id string) (*SessionRow, error) {
	row := s.read.QueryRow("SELECT "+sessionCols+" FROM sessions WHERE session_id = ?", id)
	r, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MessageRow is one stored message.
type MessageRow struct {
	SessionID  string
	Index      int
	TS         int64
	Role       string
	Kind       string
	Content    string
	LineNumber int
}

const messageCols = "session_id, message_idx, ts, role, kind, content, line_number"

func (s *Store) Messages(sessionID string) ([]MessageRow, error) {
	rows, err := s.read.Query(
		"SELECT "+messageCols+" FROM messages WHERE session_id = ? ORDER BY message_idx",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func scanMessageRows(rows *sql.Rows) ([]MessageRow, error) {
	var msgs []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.SessionID, &m.Index, &m.TS, &m.Role, &m.Kind, &m.Content, &m.LineNumber); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessagesWindow loads the messages around one hit. Message indexes are
// contiguous from zero, so the window is a plain range query. hitPos is the
// hit's position within the returned slice (-1 when there is no hit), and
// before/after count the messages outside the window.
func (s *Store) MessagesWindow(sessionID string, hitIdx, context int) (msgs []MessageRow, hitPos, before, after int, err error) {
	var total int
	err = s.read.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	if total == 0 {
		return nil, -1, 0, 0, nil
	}

	if hitIdx >= total {
		hitIdx = -1
	}

	start, end := 0, total-1
	if hitIdx >= 0 && context >= 0 {
		start = hitIdx - context
		if start < 0 {
			start = 0
		}
		end = hitIdx + context
		if end > total-1 {
			end = total - 1
		}
	}

	rows, err := s.read.Query(
		"SELECT "+messageCols+" FROM messages WHERE session_id = ? AND message_idx BETWEEN ? AND ? ORDER BY message_idx",
		sessionID, start, end,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	msgs, err = scanMessageRows(rows)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	hitPos = -1
	if hitIdx >= 0 {
		hitPos = hitIdx - start
	}
	return msgs, hitPos, start, total - end - 1, nil
}

func (s *Store) SessionCount() (int, error) {
	var n int
	err := s.read.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

func (s *Store) MessageCount() (int, error) {
	var n int
	err := s.read.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// FTSCount reports the document count in the full-text table, which should
// track MessageCount exactly.
func (s *Store) FTSCount() (int, error) {
	var n int
	err := s.read.QueryRow("SELECT COUNT(*) FROM messages_fts").Scan(&n)
	return n, err
}
