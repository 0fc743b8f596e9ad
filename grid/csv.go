package grid

import (
	"encoding/csv"
	"fmt"
	"os"
)

// LoadCSV reads a CSV file into a grid. The first record becomes the header
// row; short records are padded to the header width.
func LoadCSV(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	return New(records[0], records[1:]), nil
}

// SaveCSV writes the grid back out as CSV, header row first.
func (g *Grid) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(g.Headers); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for _, row := range g.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
