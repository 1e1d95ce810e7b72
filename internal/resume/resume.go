package resume

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/parse"
)

// Invocation is a ready-to-run agent resume command. Dir is the project the
// session belonged to, empty when it no longer exists.
type Invocation struct {
	Dir  string
	Argv []string
}

// For builds the resume command for a stored session. Claude sessions resume
// by the transcript's file stem, Codex sessions by the UUID embedded in the
// rollout filename.
func For(sess *index.SessionRow) (*Invocation, error) {
	stem := strings.TrimSuffix(filepath.Base(sess.FilePath), ".jsonl")

	var argv []string
	switch sess.Source {
	case string(parse.SourceClaude):
		argv = []string{"claude", "--resume", stem}
	case string(parse.SourceCodex):
		id, ok := extractUUID(stem)
		if !ok {
			return nil, fmt.Errorf("no session id in %s", filepath.Base(sess.FilePath))
		}
		argv = []string{"codex", "resume", id}
	default:
		return nil, fmt.Errorf("unknown source %q", sess.Source)
	}

	dir := sess.ProjectPath
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dir = ""
		}
	}

	return &Invocation{Dir: dir, Argv: argv}, nil
}

// extractUUID finds the session UUID in a rollout file stem, e.g.
// rollout-2026-08-20T10-00-00-<uuid>. The UUID sits at the end, so scan
// right to left.
func extractUUID(stem string) (string, bool) {
	for i := len(stem) - 36; i >= 0; i-- {
		if u, err := uuid.Parse(stem[i : i+36]); err == nil {
			return u.String(), true
		}
	}
	return "", false
}

// String renders the invocation as a copy-pasteable shell command.
func (inv *Invocation) String() string {
	parts := make([]string, 0, len(inv.Argv))
	for _, a := range inv.Argv {
		parts = append(parts, shellQuote(a))
	}
	cmd := strings.Join(parts, " ")
	if inv.Dir != "" {
		return "cd " + shellQuote(inv.Dir) + " && " + cmd
	}
	return cmd
}

// Run executes the invocation with the caller's terminal attached, so the
// resumed agent takes over interactively.
func (inv *Invocation) Run() error {
	path, err := exec.LookPath(inv.Argv[0])
	if err != nil {
		return fmt.Errorf("%s is not installed: %w", inv.Argv[0], err)
	}
	cmd := exec.Command(path, inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~`!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
