package enrich

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"gridfill/grid"
	"gridfill/research"
	"gridfill/stream"
)

// Run is the state of one in-flight enrichment: the group, the correlation
// table, and the set of cells still awaiting a value. Exactly one Run exists
// at a time; it is owned by the runner's reconciliation loop and never
// shared across runs.
type Run struct {
	GroupID string
	Table   CorrelationTable
	Started time.Time

	// Pending only ever shrinks within a run: a cell leaves on success, on
	// a failed job covering it, or on run termination.
	Pending map[grid.Coord]struct{}

	Success int
	Errors  int
}

func newRun(groupID string, table CorrelationTable, cells []grid.Coord) *Run {
	pending := make(map[grid.Coord]struct{}, len(cells))
	for _, c := range cells {
		pending[c] = struct{}{}
	}
	return &Run{
		GroupID: groupID,
		Table:   table,
		Started: time.Now(),
		Pending: pending,
	}
}

// apply reconciles one stream event against the run state, mutating cell
// state through the surface. It reports true when the group has gone
// inactive, the sole authoritative completion signal.
func (r *Run) apply(ev stream.Event, surface Surface, logger *log.Logger) bool {
	switch ev.Type {
	case research.EventRunState:
		var payload research.RunStateEvent
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			logger.Warn("skipping malformed run state event", "err", err)
			return false
		}
		switch payload.Run.Status {
		case research.RunCompleted:
			r.applyCompleted(payload, surface, logger)
		case research.RunFailed:
			r.applyFailed(payload.Run.RunID, surface)
		}
		return false

	case research.EventGroupStatus:
		var payload research.GroupStatusEvent
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			logger.Warn("skipping malformed group status event", "err", err)
			return false
		}
		return !payload.Status.IsActive

	default:
		// Unrecognized event kinds are ignored for forward compatibility.
		return false
	}
}

// applyCompleted writes a completed job's output into its target cells. Keys
// that resolve to no column are dropped without error; an unknown run id
// mutates nothing.
func (r *Run) applyCompleted(payload research.RunStateEvent, surface Surface, logger *log.Logger) {
	entry, ok := r.Table[payload.Run.RunID]
	if !ok {
		return
	}
	if payload.Output == nil {
		// Backfill degraded upstream; the group status backstop will clear
		// this job's cells.
		return
	}

	fields, err := orderedFields(payload.Output.Content)
	if err != nil {
		logger.Warn("skipping unparseable job output", "run_id", payload.Run.RunID, "err", err)
		return
	}

	for i, f := range fields {
		col, ok := resolveColumn(entry, f.Key, i)
		if !ok {
			continue
		}
		cell := grid.Coord{Row: entry.Row, Col: col}
		surface.SetCellValue(cell.Row, cell.Col, formatValue(f.Value))
		if _, pending := r.Pending[cell]; pending {
			delete(r.Pending, cell)
			surface.ClearPending([]grid.Coord{cell})
			r.Success++
		}
		surface.FlashCell(cell.Row, cell.Col)
	}
	surface.ReportCounts(r.Success, r.Errors)
}

// applyFailed removes every target cell of a failed job from the pending set
// so the UI never waits on a cell whose job failed. No partial value is
// written.
func (r *Run) applyFailed(runID string, surface Surface) {
	entry, ok := r.Table[runID]
	if !ok {
		return
	}

	var cleared []grid.Coord
	for _, col := range entry.TargetCols {
		cell := grid.Coord{Row: entry.Row, Col: col}
		if _, pending := r.Pending[cell]; pending {
			delete(r.Pending, cell)
			cleared = append(cleared, cell)
		}
	}
	if len(cleared) > 0 {
		surface.ClearPending(cleared)
	}
	r.Errors++
	surface.ReportCounts(r.Success, r.Errors)
}

// drainPending empties the pending set and returns the abandoned cells.
func (r *Run) drainPending() []grid.Coord {
	remaining := make([]grid.Coord, 0, len(r.Pending))
	for c := range r.Pending {
		remaining = append(remaining, c)
	}
	r.Pending = make(map[grid.Coord]struct{})
	return remaining
}
