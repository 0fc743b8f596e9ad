package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gridfill/enrich"
	"gridfill/grid"
	"gridfill/research"
)

func testModel() Model {
	g := grid.New(
		[]string{"Company", "CEO", "Employee Count"},
		[][]string{
			{"Acme", "", ""},
			{"Globex", "", ""},
			{"Initech", "", ""},
		},
	)
	return NewModel(g, "test.csv", nil, research.ProcessorBase)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "shift+down":
		return tea.KeyMsg{Type: tea.KeyShiftDown}
	case "shift+right":
		return tea.KeyMsg{Type: tea.KeyShiftRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_CursorMovement(t *testing.T) {
	m := testModel()

	if m.cur != (grid.Coord{Row: 1, Col: 0}) {
		t.Fatalf("Expected cursor at first data cell, got %+v", m.cur)
	}

	m = update(m, keyMsg("down"))
	m = update(m, keyMsg("right"))
	if m.cur != (grid.Coord{Row: 2, Col: 1}) {
		t.Errorf("Expected cursor at (2,1), got %+v", m.cur)
	}

	// The cursor never enters the header row or leaves the grid.
	m = update(m, keyMsg("up"))
	m = update(m, keyMsg("up"))
	m = update(m, keyMsg("up"))
	if m.cur.Row != 1 {
		t.Errorf("Expected cursor clamped to row 1, got %d", m.cur.Row)
	}
	for i := 0; i < 10; i++ {
		m = update(m, keyMsg("right"))
	}
	if m.cur.Col != 2 {
		t.Errorf("Expected cursor clamped to last column, got %d", m.cur.Col)
	}
}

func TestModel_SelectionAnchor(t *testing.T) {
	m := testModel()

	m = update(m, keyMsg("v"))
	if m.anchor == nil {
		t.Fatal("Expected anchor set after 'v'")
	}

	m = update(m, keyMsg("down"))
	m = update(m, keyMsg("right"))

	sel := m.selection()
	if sel.Start != (grid.Coord{Row: 1, Col: 0}) || sel.End != (grid.Coord{Row: 2, Col: 1}) {
		t.Errorf("Unexpected selection %+v", sel)
	}

	m = update(m, keyMsg("esc"))
	if m.anchor != nil {
		t.Error("Expected anchor cleared by esc")
	}
}

func TestModel_ShiftExtendsSelection(t *testing.T) {
	m := testModel()

	m = update(m, keyMsg("shift+down"))
	m = update(m, keyMsg("shift+right"))

	if m.anchor == nil {
		t.Fatal("Expected shift movement to set the anchor")
	}
	sel := m.selection()
	if sel.Start != (grid.Coord{Row: 1, Col: 0}) || sel.End != (grid.Coord{Row: 2, Col: 1}) {
		t.Errorf("Unexpected selection %+v", sel)
	}
}

func TestModel_EditMode(t *testing.T) {
	m := testModel()

	m = update(m, keyMsg("enter"))
	if m.mode != ModeEdit {
		t.Fatal("Expected edit mode after enter")
	}

	m = update(m, keyMsg("x"))
	m = update(m, keyMsg("enter"))

	if m.mode != ModeNormal {
		t.Error("Expected normal mode after commit")
	}
	if got := m.g.Value(1, 0); !strings.HasSuffix(got, "x") {
		t.Errorf("Expected typed rune committed, got %q", got)
	}
	if !m.dirty {
		t.Error("Expected grid marked dirty after edit")
	}
}

func TestModel_EditAbort(t *testing.T) {
	m := testModel()

	m = update(m, keyMsg("enter"))
	m = update(m, keyMsg("x"))
	m = update(m, keyMsg("esc"))

	if got := m.g.Value(1, 0); got != "Acme" {
		t.Errorf("Expected value unchanged after abort, got %q", got)
	}
	if m.dirty {
		t.Error("Expected grid not dirty after abort")
	}
}

func TestModel_EditBlockedWhilePending(t *testing.T) {
	m := testModel()
	m = update(m, pendingMsg{cells: []grid.Coord{{Row: 1, Col: 0}}, mark: true})

	m = update(m, keyMsg("enter"))
	if m.mode == ModeEdit {
		t.Error("Expected edit rejected for a researching cell")
	}
}

func TestModel_TierCycling(t *testing.T) {
	m := testModel()

	if m.tier != research.ProcessorBase {
		t.Fatalf("Expected base tier, got %q", m.tier)
	}
	m = update(m, keyMsg("t"))
	if m.tier != research.ProcessorCore {
		t.Errorf("Expected core after one cycle, got %q", m.tier)
	}

	// Cycling is disabled mid-run.
	m = update(m, busyMsg{busy: true})
	m = update(m, keyMsg("t"))
	if m.tier != research.ProcessorCore {
		t.Errorf("Expected tier unchanged while busy, got %q", m.tier)
	}
}

func TestModel_SurfaceMessages(t *testing.T) {
	m := testModel()

	cells := []grid.Coord{{Row: 1, Col: 1}, {Row: 2, Col: 1}}
	m = update(m, pendingMsg{cells: cells, mark: true})
	if len(m.pending) != 2 || m.initialPending != 2 {
		t.Fatalf("Expected 2 pending cells, got %d (initial %d)", len(m.pending), m.initialPending)
	}

	m = update(m, busyMsg{busy: true})
	if !m.busy {
		t.Error("Expected busy flag set")
	}

	m = update(m, cellValueMsg{row: 1, col: 1, value: "Wile E. Coyote"})
	if got := m.g.Value(1, 1); got != "Wile E. Coyote" {
		t.Errorf("Expected value applied to grid, got %q", got)
	}

	m = update(m, pendingMsg{cells: cells[:1]})
	if len(m.pending) != 1 {
		t.Errorf("Expected 1 pending cell after clear, got %d", len(m.pending))
	}

	m = update(m, countsMsg{success: 1, errors: 0})
	if m.success != 1 {
		t.Errorf("Expected success count 1, got %d", m.success)
	}

	m = update(m, busyMsg{busy: false})
	m = update(m, runEndedMsg{outcome: enrich.OutcomeCompleted, elapsed: 3 * time.Second})
	if m.busy {
		t.Error("Expected busy flag cleared")
	}
	if len(m.feed.Messages) == 0 {
		t.Error("Expected run end recorded in the feed")
	}
}

func TestModel_FlashExpiry(t *testing.T) {
	m := testModel()

	m = update(m, flashMsg{row: 1, col: 1})
	if len(m.flash) != 1 {
		t.Fatalf("Expected 1 flashed cell, got %d", len(m.flash))
	}

	m.flash[grid.Coord{Row: 1, Col: 1}] = time.Now().Add(-2 * flashDuration)
	m = update(m, flashExpireMsg{})
	if len(m.flash) != 0 {
		t.Errorf("Expected expired flash pruned, got %d", len(m.flash))
	}
}

func TestNextProcessor(t *testing.T) {
	tests := []struct {
		in, want research.Processor
	}{
		{research.ProcessorLite, research.ProcessorBase},
		{research.ProcessorPro, research.ProcessorLite},
		{"bogus", research.ProcessorLite},
	}
	for _, tt := range tests {
		if got := nextProcessor(tt.in); got != tt.want {
			t.Errorf("nextProcessor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPad(t *testing.T) {
	if got := pad("ab", 4); got != "ab  " {
		t.Errorf("Expected right-padded value, got %q", got)
	}
	if got := pad("abcdef", 4); got != "abc…" {
		t.Errorf("Expected truncation with ellipsis, got %q", got)
	}
}

func TestFeed_TrimsToMax(t *testing.T) {
	f := NewFeed(40, 4)
	f.MaxMessages = 3
	for i := 0; i < 5; i++ {
		f.Add(MsgTypeStatus, "message %d", i)
	}
	if len(f.Messages) != 3 {
		t.Fatalf("Expected feed trimmed to 3, got %d", len(f.Messages))
	}
	if f.Messages[0].Text != "message 2" {
		t.Errorf("Expected oldest messages dropped, got %q", f.Messages[0].Text)
	}
}

func TestProgramSurface_UnattachedIsInert(t *testing.T) {
	s := NewProgramSurface()
	// None of these may panic before Attach.
	s.SetCellValue(1, 1, "x")
	s.FlashCell(1, 1)
	s.MarkPending([]grid.Coord{{Row: 1, Col: 1}})
	s.ClearPending(nil)
	s.ReportCounts(1, 0)
	s.ReportBusy(true)
	s.RunEnded(enrich.OutcomeCompleted, time.Second)
}
