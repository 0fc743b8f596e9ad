package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gridfill/enrich"
	"gridfill/grid"
)

// Messages the enrichment runner sends into the Bubble Tea program.

type cellValueMsg struct {
	row, col int
	value    string
}

type flashMsg struct {
	row, col int
}

type pendingMsg struct {
	cells []grid.Coord
	mark  bool
}

type countsMsg struct {
	success, errors int
}

type busyMsg struct {
	busy bool
}

type runEndedMsg struct {
	outcome enrich.Outcome
	elapsed time.Duration
}

// ProgramSurface implements enrich.Surface by forwarding every mutation as a
// message into the Bubble Tea program, so cell state changes are applied on
// the UI loop in the order the reconciler produced them.
type ProgramSurface struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewProgramSurface creates a surface that is inert until Attach is called.
func NewProgramSurface() *ProgramSurface {
	return &ProgramSurface{}
}

// Attach binds the surface to a running program.
func (s *ProgramSurface) Attach(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func (s *ProgramSurface) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *ProgramSurface) SetCellValue(row, col int, value string) {
	s.send(cellValueMsg{row: row, col: col, value: value})
}

func (s *ProgramSurface) FlashCell(row, col int) {
	s.send(flashMsg{row: row, col: col})
}

func (s *ProgramSurface) MarkPending(cells []grid.Coord) {
	s.send(pendingMsg{cells: cells, mark: true})
}

func (s *ProgramSurface) ClearPending(cells []grid.Coord) {
	s.send(pendingMsg{cells: cells})
}

func (s *ProgramSurface) ReportCounts(success, errors int) {
	s.send(countsMsg{success: success, errors: errors})
}

func (s *ProgramSurface) ReportBusy(busy bool) {
	s.send(busyMsg{busy: busy})
}

func (s *ProgramSurface) RunEnded(outcome enrich.Outcome, elapsed time.Duration) {
	s.send(runEndedMsg{outcome: outcome, elapsed: elapsed})
}
