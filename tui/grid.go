package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gridfill/enrich"
	"gridfill/grid"
	"gridfill/research"
)

const flashDuration = 800 * time.Millisecond

// Mode is the grid interaction mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSelect
	ModeEdit
)

// enrichStartedMsg reports the outcome of a submission attempt
type enrichStartedMsg struct {
	groupID string
	err     error
}

// flashExpireMsg prunes expired flash tags
type flashExpireMsg struct{}

// Model is the Bubble Tea model for the grid screen
type Model struct {
	g      *grid.Grid
	path   string
	runner *enrich.Runner
	tier   research.Processor

	// Cursor and viewport
	cur     grid.Coord
	scrollX int
	scrollY int
	width   int
	height  int

	// Selection anchor; nil when nothing is selected
	anchor *grid.Coord

	mode      Mode
	editInput textinput.Model

	// UI components
	spin spinner.Model
	prog progress.Model
	feed *Feed

	// Run state mirrored from the core
	busy           bool
	pending        map[grid.Coord]struct{}
	flash          map[grid.Coord]time.Time
	initialPending int
	success        int
	errors         int
	groupID        string
	runStart       time.Time

	statusMsg string
	dirty     bool
	quitting  bool
}

// NewModel creates the grid screen for a loaded CSV
func NewModel(g *grid.Grid, path string, runner *enrich.Runner, tier research.Processor) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
	)

	if !tier.Valid() {
		tier = research.ProcessorBase
	}

	return Model{
		g:         g,
		path:      path,
		runner:    runner,
		tier:      tier,
		cur:       grid.Coord{Row: 1, Col: 0},
		editInput: ti,
		spin:      s,
		prog:      p,
		feed:      NewFeed(76, 5),
		pending:   make(map[grid.Coord]struct{}),
		flash:     make(map[grid.Coord]time.Time),
		width:     100,
		height:    30,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// selection returns the active selection, or a single-cell selection at the
// cursor when no anchor is set.
func (m Model) selection() grid.Selection {
	if m.anchor == nil {
		return grid.Selection{Start: m.cur, End: m.cur}
	}
	return grid.Selection{Start: *m.anchor, End: m.cur}.Normalize()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.feed.SetSize(msg.Width-4, 5)
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeEdit {
			return m.updateEdit(msg)
		}
		return m.updateNormal(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progModel, cmd := m.prog.Update(msg)
		m.prog = progModel.(progress.Model)
		return m, cmd

	case enrichStartedMsg:
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
			m.feed.Add(MsgTypeError, "submission failed: %v", msg.err)
			return m, nil
		}
		m.groupID = msg.groupID
		m.anchor = nil // selection is consumed by a successful submission
		m.feed.Add(MsgTypeSubmit, "batch submitted as group %s (%s tier)", msg.groupID, m.tier)
		return m, nil

	case cellValueMsg:
		if err := m.g.SetValue(msg.row, msg.col, msg.value); err == nil {
			m.dirty = true
		}
		return m, nil

	case flashMsg:
		m.flash[grid.Coord{Row: msg.row, Col: msg.col}] = time.Now()
		return m, tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashExpireMsg{} })

	case flashExpireMsg:
		now := time.Now()
		for c, t := range m.flash {
			if now.Sub(t) >= flashDuration {
				delete(m.flash, c)
			}
		}
		return m, nil

	case pendingMsg:
		if msg.mark {
			for _, c := range msg.cells {
				m.pending[c] = struct{}{}
			}
			m.initialPending = len(m.pending)
		} else {
			for _, c := range msg.cells {
				delete(m.pending, c)
			}
		}
		return m, nil

	case countsMsg:
		if msg.errors > m.errors {
			m.feed.Add(MsgTypeFailure, "%d job(s) failed", msg.errors)
		}
		m.success = msg.success
		m.errors = msg.errors
		return m, nil

	case busyMsg:
		m.busy = msg.busy
		if msg.busy {
			m.runStart = time.Now()
			return m, m.spin.Tick
		}
		return m, nil

	case runEndedMsg:
		kind := MsgTypeDone
		if msg.outcome != enrich.OutcomeCompleted {
			kind = MsgTypeError
		}
		m.feed.Add(kind, "run %s after %s (%d filled, %d failed)",
			msg.outcome, msg.elapsed.Round(time.Second), m.success, m.errors)
		m.statusMsg = fmt.Sprintf("run %s", msg.outcome)
		return m, nil
	}

	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.busy {
			m.runner.Cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case "q":
		if !m.busy {
			m.quitting = true
			return m, tea.Quit
		}

	case "esc":
		if m.busy {
			m.runner.Cancel()
			m.feed.Add(MsgTypeStatus, "cancelling run %s", m.groupID)
			return m, nil
		}
		m.anchor = nil
		m.mode = ModeNormal
		m.statusMsg = ""

	case "left", "h":
		m.moveCursor(0, -1, false)
	case "right", "l":
		m.moveCursor(0, 1, false)
	case "up", "k":
		m.moveCursor(-1, 0, false)
	case "down", "j":
		m.moveCursor(1, 0, false)
	case "shift+left":
		m.moveCursor(0, -1, true)
	case "shift+right":
		m.moveCursor(0, 1, true)
	case "shift+up":
		m.moveCursor(-1, 0, true)
	case "shift+down":
		m.moveCursor(1, 0, true)
	case "home":
		m.cur.Col = 0
		m.ensureVisible()
	case "end":
		m.cur.Col = m.g.NumCols() - 1
		m.ensureVisible()

	case "v":
		if m.anchor == nil {
			anchor := m.cur
			m.anchor = &anchor
			m.mode = ModeSelect
		} else {
			m.anchor = nil
			m.mode = ModeNormal
		}

	case "t":
		if !m.busy {
			m.tier = nextProcessor(m.tier)
		}

	case "enter", "i":
		return m.beginEdit()

	case "r":
		return m.startEnrich()

	case "ctrl+s":
		if err := m.g.SaveCSV(m.path); err != nil {
			m.statusMsg = err.Error()
			m.feed.Add(MsgTypeError, "save failed: %v", err)
		} else {
			m.dirty = false
			m.statusMsg = "saved " + filepath.Base(m.path)
		}
	}
	return m, nil
}

func (m *Model) moveCursor(dr, dc int, extend bool) {
	if extend && m.anchor == nil {
		anchor := m.cur
		m.anchor = &anchor
		m.mode = ModeSelect
	}
	if !extend && m.mode == ModeNormal {
		m.anchor = nil
	}

	m.cur.Row += dr
	m.cur.Col += dc
	if m.cur.Row < 1 {
		m.cur.Row = 1
	}
	if m.cur.Row >= m.g.NumRows() {
		m.cur.Row = m.g.NumRows() - 1
	}
	if m.cur.Col < 0 {
		m.cur.Col = 0
	}
	if m.cur.Col >= m.g.NumCols() {
		m.cur.Col = m.g.NumCols() - 1
	}
	m.ensureVisible()
}

func (m *Model) ensureVisible() {
	visRows := m.visibleRowCount()
	if m.cur.Row-1 < m.scrollY {
		m.scrollY = m.cur.Row - 1
	}
	if m.cur.Row-1 >= m.scrollY+visRows {
		m.scrollY = m.cur.Row - visRows
	}
	if m.cur.Col < m.scrollX {
		m.scrollX = m.cur.Col
	}
	// Horizontal fit depends on column widths; keep the cursor within a
	// conservative window.
	for m.cur.Col >= m.scrollX+m.maxVisibleCols() {
		m.scrollX++
	}
}

func (m Model) visibleRowCount() int {
	// Header box, column header, status, feed, help.
	rows := m.height - 14
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m Model) maxVisibleCols() int {
	cols := (m.width - 6) / 12
	if cols < 1 {
		cols = 1
	}
	return cols
}

func (m Model) beginEdit() (tea.Model, tea.Cmd) {
	if _, pending := m.pending[m.cur]; pending {
		m.statusMsg = "cell is being researched"
		return m, nil
	}
	m.mode = ModeEdit
	m.editInput.SetValue(m.g.Value(m.cur.Row, m.cur.Col))
	m.editInput.CursorEnd()
	m.editInput.Focus()
	return m, textinput.Blink
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if err := m.g.SetValue(m.cur.Row, m.cur.Col, m.editInput.Value()); err == nil {
			m.dirty = true
		}
		m.mode = ModeNormal
		m.editInput.Blur()
		return m, nil
	case "esc":
		m.mode = ModeNormal
		m.editInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.editInput, cmd = m.editInput.Update(msg)
	return m, cmd
}

// startEnrich submits the current selection. The submission happens inside
// the command; all later updates arrive through the surface messages.
func (m Model) startEnrich() (tea.Model, tea.Cmd) {
	if m.busy {
		m.statusMsg = "a run is already in progress"
		return m, nil
	}

	sel := m.selection()
	g := m.g
	runner := m.runner
	tier := m.tier

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		groupID, err := runner.Enrich(ctx, g, sel, tier)
		return enrichStartedMsg{groupID: groupID, err: err}
	}
}

func nextProcessor(p research.Processor) research.Processor {
	for i, known := range research.Processors {
		if known == p {
			return research.Processors[(i+1)%len(research.Processors)]
		}
	}
	return research.Processors[0]
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return MutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderGrid())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.feed.View()))
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("gridfill")
	file := MutedStyle.Render(filepath.Base(m.path))
	tier := lipgloss.NewStyle().Foreground(ColorSecondary).Render("tier: " + string(m.tier))

	parts := []string{title, file, tier}
	if m.busy {
		done := m.initialPending - len(m.pending)
		pct := 0.0
		if m.initialPending > 0 {
			pct = float64(done) / float64(m.initialPending)
		}
		parts = append(parts,
			m.spin.View()+BodyStyle.Render(fmt.Sprintf("researching %d/%d cells", done, m.initialPending)),
			m.prog.ViewAs(pct),
			MutedStyle.Render(time.Since(m.runStart).Round(time.Second).String()),
		)
	} else if m.success > 0 || m.errors > 0 {
		parts = append(parts, SuccessStyle.Render(fmt.Sprintf("%d filled", m.success)))
		if m.errors > 0 {
			parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", m.errors)))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(parts, "  "))
}

func (m Model) renderGrid() string {
	widths := m.columnWidths()
	sel := m.selection()
	hasSel := m.anchor != nil

	var b strings.Builder

	// Column header row
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%4s ", "")))
	for c := m.scrollX; c < m.g.NumCols() && c < m.scrollX+len(widths); c++ {
		b.WriteString(HeaderCellStyle.Render(pad(m.g.Header(c), widths[c-m.scrollX])))
		b.WriteString(" ")
	}
	b.WriteString("\n")

	visRows := m.visibleRowCount()
	for r := m.scrollY + 1; r < m.g.NumRows() && r <= m.scrollY+visRows; r++ {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%4d ", r)))
		for c := m.scrollX; c < m.g.NumCols() && c < m.scrollX+len(widths); c++ {
			cell := grid.Coord{Row: r, Col: c}
			text := m.g.Value(r, c)

			_, isPending := m.pending[cell]
			_, isFlash := m.flash[cell]
			if isPending && text == "" {
				text = "…"
			}
			if m.mode == ModeEdit && cell == m.cur {
				text = m.editInput.Value()
			}

			style := BodyStyle
			switch {
			case cell == m.cur:
				style = CursorCellStyle
			case hasSel && sel.Contains(cell):
				style = SelectedCellStyle
			case isFlash:
				style = FlashCellStyle
			case isPending:
				style = PendingCellStyle
			}
			b.WriteString(style.Render(pad(text, widths[c-m.scrollX])))
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// columnWidths sizes the visible columns from their header and content.
func (m Model) columnWidths() []int {
	maxCols := m.maxVisibleCols()
	var widths []int
	for c := m.scrollX; c < m.g.NumCols() && len(widths) < maxCols; c++ {
		w := len([]rune(m.g.Header(c)))
		for r := 1; r < m.g.NumRows(); r++ {
			if l := len([]rune(m.g.Value(r, c))); l > w {
				w = l
			}
		}
		if w < 6 {
			w = 6
		}
		if w > 20 {
			w = 20
		}
		widths = append(widths, w)
	}
	return widths
}

func pad(s string, width int) string {
	runes := []rune(s)
	if len(runes) > width {
		if width <= 1 {
			return string(runes[:width])
		}
		return string(runes[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(runes))
}

func (m Model) renderStatusBar() string {
	sel := m.selection()
	loc := sel.String()
	if m.anchor == nil {
		loc = fmt.Sprintf("%s  (%s)", loc, m.g.Header(m.cur.Col))
	}

	parts := []string{loc}
	if m.dirty {
		parts = append(parts, "modified")
	}
	if m.mode == ModeEdit {
		parts = append(parts, "editing")
	}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	return StatusBarStyle.Render(strings.Join(parts, "  |  "))
}

func (m Model) renderHelp() string {
	if m.mode == ModeEdit {
		return HelpStyle.Render("enter confirm  esc cancel")
	}
	if m.busy {
		return HelpStyle.Render("esc cancel run  arrows move  ctrl+s save  ctrl+c quit")
	}
	return HelpStyle.Render("arrows/hjkl move  shift+arrows/v select  r research  t tier  enter edit  ctrl+s save  q quit")
}
