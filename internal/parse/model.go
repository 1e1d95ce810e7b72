package parse

import "time"

// Source identifies which transcript format a session came from.
type Source string

const (
	SourceClaude Source = "claude"
	SourceCodex  Source = "codex"
)

// Message roles. Every role is indexed as plain text; the distinction only
// matters for display.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message kinds. Assistant reasoning is kept apart from the visible reply so
// rendering can dim it.
const (
	KindText     = "text"
	KindThinking = "thinking"
)

// Session is one conversation transcript. It is rebuilt from scratch on every
// parse; the indexed state for its ID is replaced wholesale, never patched.
type Session struct {
	// ID is source-prefixed and derived from the file path relative to its
	// root, e.g. "claude:myproj/019bf9a3-...". Stable across re-parses.
	ID           string
	Source       Source
	FilePath     string
	ProjectPath  string
	Summary      string
	CreatedAt    time.Time // first message timestamp
	UpdatedAt    time.Time // last message timestamp
	LastModified time.Time // source file mtime at parse
	Size         int64
	Messages     []Message
}

// Message is one indexed unit of a conversation. Multi-part content is
// concatenated into Content; a turn carrying both reasoning and a reply
// yields a thinking message followed by a text message.
type Message struct {
	Index      int // position within Session.Messages
	Role       string
	Kind       string
	Content    string
	Timestamp  time.Time // zero when the record had none; ranking falls back to LastModified
	LineNumber int       // line in the source file, for editor jumps
}
