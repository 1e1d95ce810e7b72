package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/logging"
	"github.com/rewind-cli/rewind/internal/search"
)

var log = logging.ForComponent(logging.CompTUI)

const debounceDelay = 200 * time.Millisecond

type tuiMode int

const (
	modeSearch tuiMode = iota
	modeList
)

// Action says what the user chose to do with the selected session.
type Action int

const (
	ActionNone Action = iota
	ActionResume
	ActionOpen
	ActionCopy
)

// Selection is the result of a TUI run: which session the user picked and
// what they want done with it. A nil Selection means they just quit.
type Selection struct {
	Action     Action
	SessionID  string
	MessageIdx int
}

// message types

type searchResultMsg struct {
	query   string
	results []search.Result
	err     error
}

type debounceTickMsg struct {
	query string
}

type progressMsg index.Event

// model

type model struct {
	store      *index.Store
	sched      *index.Scheduler
	searchOpts search.Options
	mode       tuiMode

	query       string
	results     []search.Result
	cursor      int
	listOffset  int
	filterInput textinput.Model
	preview     viewport.Model
	previewKey  string // "sessionID:messageIdx" to avoid duplicate renders

	cwd   string
	scope string // "" = everywhere, otherwise restrict to this project tree

	indexing bool
	progress index.Event
	rebuilt  bool

	width    int
	height   int
	ready    bool
	quitting bool

	selection *Selection
}

func newModel(st *index.Store, sched *index.Scheduler, mode tuiMode, query string, opts search.Options) model {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	if mode == modeList {
		ti.Placeholder = "Filter..."
	}
	ti.Focus()
	ti.SetValue(query)
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256

	cwd, _ := os.Getwd()

	return model{
		store:       st,
		sched:       sched,
		searchOpts:  opts,
		mode:        mode,
		query:       query,
		filterInput: ti,
		preview:     viewport.New(0, 0),
		cwd:         cwd,
		scope:       opts.Scope,
		indexing:    sched != nil,
	}
}

// Run starts the interactive search screen and blocks until it exits. When
// sched is non-nil, its progress events feed the status bar while a
// background pass runs.
func Run(st *index.Store, sched *index.Scheduler, query string, opts search.Options) (*Selection, error) {
	return run(newModel(st, sched, modeSearch, query, opts))
}

// RunList starts the session browser: newest sessions first, with a fuzzy
// filter instead of full-text search.
func RunList(st *index.Store, opts search.Options) (*Selection, error) {
	return run(newModel(st, nil, modeList, "", opts))
}

func run(m model) (*Selection, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	return finalModel.(model).selection, nil
}

// waitForProgress relays one scheduler event into the program. Re-issued
// after each delivery so the stream keeps flowing.
func waitForProgress(ch <-chan index.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(e)
	}
}

// Init triggers the initial load and, when indexing, the progress relay.
func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.sched != nil {
		cmds = append(cmds, waitForProgress(m.sched.Events()))
	}
	if m.mode == modeList {
		cmds = append(cmds, m.doList(""))
	} else if m.query != "" {
		cmds = append(cmds, m.doSearch(m.query))
	} else {
		cmds = append(cmds, m.doRecent(""))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		if len(m.results) > 0 && m.cursor < len(m.results) {
			cmds = append(cmds, loadPreviewCmd(m.store, m.results[m.cursor], m.query, m.previewWidth()))
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Enter):
			return m.choose(ActionResume)

		case key.Matches(msg, keys.Open):
			return m.choose(ActionOpen)

		case key.Matches(msg, keys.Copy):
			return m.choose(ActionCopy)

		case key.Matches(msg, keys.Scope):
			if m.scope == "" {
				m.scope = m.cwd
			} else {
				m.scope = ""
			}
			return m, m.refresh()

		case key.Matches(msg, keys.Source):
			m.searchOpts.Source = nextSource(m.searchOpts.Source)
			return m, m.refresh()

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.results)-1 {
				m.cursor++
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.PreviewUp):
			m.preview.LineUp(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PreviewDn):
			m.preview.LineDown(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PageUp):
			m.preview.LineUp(m.panelHeight())
			return m, nil

		case key.Matches(msg, keys.PageDown):
			m.preview.LineDown(m.panelHeight())
			return m, nil
		}

		// remaining keys feed the text input
		var tiCmd tea.Cmd
		m.filterInput, tiCmd = m.filterInput.Update(msg)
		cmds = append(cmds, tiCmd)

		newQuery := m.filterInput.Value()
		if newQuery != m.query {
			m.query = newQuery
			cmds = append(cmds, m.scheduleDebounced(newQuery))
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		if !m.ready || len(m.results) == 0 {
			return m, nil
		}

		region, itemIdx := m.hitTest(msg.X, msg.Y)

		switch {
		case region == regionList && msg.Button == tea.MouseButtonWheelUp:
			if m.listOffset > 0 {
				m.listOffset--
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonWheelDown:
			visibleItems := m.panelHeight() / linesPerItem
			maxOffset := len(m.results) - visibleItems
			if maxOffset < 0 {
				maxOffset = 0
			}
			if m.listOffset < maxOffset {
				m.listOffset++
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if itemIdx >= 0 && itemIdx < len(m.results) && m.cursor != itemIdx {
				m.cursor = itemIdx
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case region == regionPreview && (msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown):
			var vpCmd tea.Cmd
			m.preview, vpCmd = m.preview.Update(msg)
			if vpCmd != nil {
				cmds = append(cmds, vpCmd)
			}
			return m, tea.Batch(cmds...)
		}

		return m, nil

	case debounceTickMsg:
		// only fire if the query hasn't changed since this tick was scheduled
		if msg.query == m.query {
			cmds = append(cmds, m.reload(msg.query))
		}
		return m, tea.Batch(cmds...)

	case progressMsg:
		e := index.Event(msg)
		m.progress = e
		switch e.Kind {
		case index.EventRebuild:
			m.rebuilt = true
		case index.EventCompleted, index.EventFailed:
			m.indexing = false
			// fresh data just landed; re-run the current view
			cmds = append(cmds, m.reload(m.query))
		}
		if m.sched != nil {
			cmds = append(cmds, waitForProgress(m.sched.Events()))
		}
		return m, tea.Batch(cmds...)

	case searchResultMsg:
		if msg.query != m.query {
			return m, nil
		}
		if msg.err != nil {
			m.results = nil
			m.cursor = 0
			m.listOffset = 0
			m.preview.SetContent("Error: " + msg.err.Error())
			m.previewKey = ""
			return m, nil
		}
		m.results = msg.results
		if m.cursor >= len(m.results) {
			m.cursor = 0
			m.listOffset = 0
		}
		if len(m.results) > 0 {
			cmds = append(cmds, m.loadCurrentPreview())
		} else {
			m.preview.SetContent("")
			m.previewKey = ""
		}
		return m, tea.Batch(cmds...)

	case previewRenderedMsg:
		key := previewCacheKey(msg.sessionID, msg.messageIdx)
		if key == m.previewKey {
			return m, nil
		}
		if len(m.results) > 0 && m.cursor < len(m.results) {
			r := m.results[m.cursor]
			if key != previewCacheKey(r.SessionID, r.MessageIdx) {
				return m, nil // stale preview
			}
		}
		if msg.err != nil {
			m.preview.SetContent("Preview error: " + msg.err.Error())
		} else {
			m.preview.SetContent(msg.content)
			if msg.hitLine > 0 {
				m.preview.SetYOffset(msg.hitLine)
			} else {
				m.preview.GotoTop()
			}
		}
		m.previewKey = key
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

func (m model) choose(action Action) (tea.Model, tea.Cmd) {
	if len(m.results) == 0 || m.cursor >= len(m.results) {
		return m, nil
	}
	r := m.results[m.cursor]
	m.selection = &Selection{
		Action:     action,
		SessionID:  r.SessionID,
		MessageIdx: r.MessageIdx,
	}
	m.quitting = true
	return m, tea.Quit
}

func nextSource(s string) string {
	switch s {
	case "":
		return "claude"
	case "claude":
		return "codex"
	default:
		return ""
	}
}

// View renders the full TUI.
func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	inputRow := m.filterInput.View()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.preview.Width = previewW
	m.preview.Height = panelH
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(m.preview.View())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)
	status := m.statusBar()

	return lipgloss.JoinVertical(lipgloss.Left, inputRow, panels, status)
}

// helper methods

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	w := m.width*40/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	w := m.width*60/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// input row (1) + status bar (1) + borders (4)
	h := m.height - 6
	if h < 5 {
		h = 5
	}
	return h
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	pH := m.panelHeight()
	contentYStart := 2 // input row (1) + top border (1)
	contentYEnd := contentYStart + pH - 1

	if y < contentYStart || y > contentYEnd {
		return regionNone, -1
	}
	relY := y - contentYStart

	lw := m.listWidth()
	listBoxRight := lw + 1 // col 0=border, 1..lw=content, lw+1=border

	if x >= 1 && x <= lw {
		return regionList, m.listOffset + relY/linesPerItem
	}

	if x > listBoxRight+1 {
		return regionPreview, -1
	}

	return regionNone, -1
}

func (m model) statusBar() string {
	var parts []string

	if m.indexing {
		p := m.progress
		if p.FilesTotal > 0 {
			name := filepath.Base(p.CurrentFile)
			parts = append(parts, fmt.Sprintf("indexing %d/%d %s", p.FilesDone, p.FilesTotal, name))
		} else if m.rebuilt {
			parts = append(parts, "rebuilding index")
		} else {
			parts = append(parts, "indexing")
		}
	}

	parts = append(parts, fmt.Sprintf("%d results", len(m.results)))
	if m.scope != "" {
		parts = append(parts, "scope: here")
	}
	if m.searchOpts.Source != "" {
		parts = append(parts, "source: "+m.searchOpts.Source)
	}
	parts = append(parts, "Enter resume", "C-o editor", "C-y copy", "Tab scope", "C-s source", "Esc quit")
	return styleStatusBar.Render(strings.Join(parts, " | "))
}

// reload picks the right loader for the current mode and query.
func (m model) reload(query string) tea.Cmd {
	if m.mode == modeList {
		return m.doList(query)
	}
	if strings.TrimSpace(query) == "" {
		return m.doRecent(query)
	}
	return m.doSearch(query)
}

func (m model) refresh() tea.Cmd {
	return m.reload(m.query)
}

func (m model) doSearch(query string) tea.Cmd {
	st := m.store
	opts := m.searchOpts
	opts.Query = query
	opts.Scope = m.scope
	return func() tea.Msg {
		results, err := search.Run(st, opts)
		if err != nil {
			log.Warn("search failed", "query", query, "error", err)
		}
		return searchResultMsg{query: query, results: results, err: err}
	}
}

// doRecent lists the newest sessions; shown while the query box is empty.
func (m model) doRecent(query string) tea.Cmd {
	st := m.store
	opts := m.searchOpts
	opts.Scope = m.scope
	return func() tea.Msg {
		results, err := search.Recent(st, recentLimit(opts), opts)
		return searchResultMsg{query: query, results: results, err: err}
	}
}

// doList is the browser view: recent sessions, optionally narrowed by the
// fuzzy filter.
func (m model) doList(filter string) tea.Cmd {
	st := m.store
	opts := m.searchOpts
	opts.Scope = m.scope
	return func() tea.Msg {
		results, err := search.Recent(st, listFetchLimit, opts)
		if err != nil {
			return searchResultMsg{query: filter, err: err}
		}
		if strings.TrimSpace(filter) != "" {
			results = search.FuzzyFilter(results, filter)
		}
		return searchResultMsg{query: filter, results: results}
	}
}

func recentLimit(opts search.Options) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return 50
}

func (m model) scheduleDebounced(query string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{query: query}
	})
}

func (m model) loadCurrentPreview() tea.Cmd {
	if len(m.results) == 0 || m.cursor >= len(m.results) {
		return nil
	}
	r := m.results[m.cursor]
	key := previewCacheKey(r.SessionID, r.MessageIdx)
	if key == m.previewKey {
		return nil
	}
	return loadPreviewCmd(m.store, r, m.query, m.previewWidth())
}

func previewCacheKey(sessionID string, messageIdx int) string {
	return fmt.Sprintf("%s:%d", sessionID, messageIdx)
}
