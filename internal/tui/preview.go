package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/render"
	"github.com/rewind-cli/rewind/internal/search"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	sessionID  string
	messageIdx int
	content    string
	hitLine    int
	err        error
}

// loadPreviewCmd returns a tea.Cmd that renders the conversation preview
// async. The whole session is rendered; the viewport scrolls to the hit.
func loadPreviewCmd(st *index.Store, r search.Result, query string, width int) tea.Cmd {
	return func() tea.Msg {
		content, hitLine, err := render.Conversation(st, r.SessionID, render.Options{
			HitIdx:  r.MessageIdx,
			Context: -1,
			Width:   width,
			Query:   query,
		})
		return previewRenderedMsg{
			sessionID:  r.SessionID,
			messageIdx: r.MessageIdx,
			content:    content,
			hitLine:    hitLine,
			err:        err,
		}
	}
}

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	return vp
}
