// Package grid holds the tabular data model: headers, data rows, and
// rectangular selections addressed by (row, col) coordinates. Row 0 is the
// header row; data rows start at row 1.
package grid

import (
	"fmt"
	"strings"
)

// Coord identifies a single cell. Row 0 is the header row.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid is an in-memory table. Headers are row 0 and are read-only through
// SetValue; Rows hold the data rows.
type Grid struct {
	Headers []string
	Rows    [][]string
}

// New creates a grid with the given headers and data rows. Ragged rows are
// padded to the header width.
func New(headers []string, rows [][]string) *Grid {
	g := &Grid{Headers: headers}
	for _, row := range rows {
		g.Rows = append(g.Rows, padRow(row, len(headers)))
	}
	return g
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

// NumCols returns the number of columns.
func (g *Grid) NumCols() int {
	return len(g.Headers)
}

// NumRows returns the number of rows including the header row, so valid row
// coordinates are [0, NumRows).
func (g *Grid) NumRows() int {
	return len(g.Rows) + 1
}

// Header returns the header name for a column, or "" if out of range.
func (g *Grid) Header(col int) string {
	if col < 0 || col >= len(g.Headers) {
		return ""
	}
	return g.Headers[col]
}

// Value returns the value at (row, col). Row 0 yields the header name.
func (g *Grid) Value(row, col int) string {
	if col < 0 || col >= len(g.Headers) {
		return ""
	}
	if row == 0 {
		return g.Headers[col]
	}
	if row < 1 || row > len(g.Rows) {
		return ""
	}
	return g.Rows[row-1][col]
}

// SetValue writes a value into a data cell. The header row and out-of-range
// coordinates are rejected.
func (g *Grid) SetValue(row, col int, value string) error {
	if row < 1 || row > len(g.Rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	if col < 0 || col >= len(g.Headers) {
		return fmt.Errorf("col %d out of range", col)
	}
	g.Rows[row-1][col] = value
	return nil
}

// RowContext returns the full data row keyed by header name. Empty cells are
// included so the receiver can see which columns exist.
func (g *Grid) RowContext(row int) map[string]string {
	ctx := make(map[string]string, len(g.Headers))
	for col, h := range g.Headers {
		ctx[h] = g.Value(row, col)
	}
	return ctx
}

// Selection is an axis-aligned rectangle of cell coordinates, inclusive on
// both ends. It is not required to be normalized until Normalize is called.
type Selection struct {
	Start Coord `json:"start"`
	End   Coord `json:"end"`
}

// Normalize returns an equivalent selection with Start <= End on both axes.
func (s Selection) Normalize() Selection {
	if s.Start.Row > s.End.Row {
		s.Start.Row, s.End.Row = s.End.Row, s.Start.Row
	}
	if s.Start.Col > s.End.Col {
		s.Start.Col, s.End.Col = s.End.Col, s.Start.Col
	}
	return s
}

// Clamp limits the selection to the grid's data region: rows [1, NumRows),
// cols [0, NumCols).
func (s Selection) Clamp(g *Grid) Selection {
	s = s.Normalize()
	if s.Start.Row < 1 {
		s.Start.Row = 1
	}
	if s.End.Row >= g.NumRows() {
		s.End.Row = g.NumRows() - 1
	}
	if s.Start.Col < 0 {
		s.Start.Col = 0
	}
	if s.End.Col >= g.NumCols() {
		s.End.Col = g.NumCols() - 1
	}
	return s
}

// Contains reports whether the (normalized) selection covers the coordinate.
func (s Selection) Contains(c Coord) bool {
	s = s.Normalize()
	return c.Row >= s.Start.Row && c.Row <= s.End.Row &&
		c.Col >= s.Start.Col && c.Col <= s.End.Col
}

// Rows returns the selected row indices in ascending order.
func (s Selection) Rows() []int {
	s = s.Normalize()
	start := s.Start.Row
	if start < 1 {
		start = 1
	}
	var rows []int
	for r := start; r <= s.End.Row; r++ {
		rows = append(rows, r)
	}
	return rows
}

// Cols returns the selected column indices in left-to-right order.
func (s Selection) Cols() []int {
	s = s.Normalize()
	var cols []int
	for c := s.Start.Col; c <= s.End.Col; c++ {
		cols = append(cols, c)
	}
	return cols
}

// Cells returns every covered cell coordinate, row-major.
func (s Selection) Cells() []Coord {
	var cells []Coord
	for _, r := range s.Rows() {
		for _, c := range s.Cols() {
			cells = append(cells, Coord{Row: r, Col: c})
		}
	}
	return cells
}

// String renders the selection in A1-style notation for status lines.
func (s Selection) String() string {
	s = s.Normalize()
	return fmt.Sprintf("%s%d:%s%d",
		columnName(s.Start.Col), s.Start.Row,
		columnName(s.End.Col), s.End.Row)
}

// columnName converts a zero-based column index to spreadsheet letters.
func columnName(col int) string {
	var b strings.Builder
	col++
	for col > 0 {
		col--
		b.WriteByte(byte('A' + col%26))
		col /= 26
	}
	runes := []rune(b.String())
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
