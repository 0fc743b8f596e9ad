package enrich

import (
	"encoding/json"
	"testing"
)

func TestOrderedFields_PreservesWireOrder(t *testing.T) {
	raw := json.RawMessage(`{"zeta": "1", "alpha": "2", "mid": "3"}`)

	fields, err := orderedFields(raw)
	if err != nil {
		t.Fatalf("orderedFields failed: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("Expected 3 fields, got %d", len(fields))
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, f := range fields {
		if f.Key != want[i] {
			t.Errorf("Field %d: expected %q, got %q", i, want[i], f.Key)
		}
	}
}

func TestOrderedFields_RejectsNonObject(t *testing.T) {
	if _, err := orderedFields(json.RawMessage(`["a", "b"]`)); err == nil {
		t.Error("Expected error for array output")
	}
	if _, err := orderedFields(json.RawMessage(`not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestResolveColumn(t *testing.T) {
	entry := RunEntry{
		Row:           2,
		TargetCols:    []int{1, 4},
		TargetHeaders: []string{"CEO", "Employee Count"},
	}

	tests := []struct {
		name    string
		key     string
		pos     int
		wantCol int
		wantOK  bool
	}{
		{"exact match", "CEO", 5, 1, true},
		{"case-insensitive match", "ceo", 5, 1, true},
		{"snake_case match", "employee_count", 5, 4, true},
		{"punctuation stripped", "Employee-Count!", 5, 4, true},
		{"positional fallback", "col_2", 1, 4, true},
		{"no match beyond positions", "mystery", 7, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, ok := resolveColumn(entry, tt.key, tt.pos)
			if ok != tt.wantOK {
				t.Fatalf("resolveColumn(%q, %d): ok = %v, want %v", tt.key, tt.pos, ok, tt.wantOK)
			}
			if ok && col != tt.wantCol {
				t.Errorf("resolveColumn(%q, %d) = %d, want %d", tt.key, tt.pos, col, tt.wantCol)
			}
		})
	}
}

func TestResolveColumn_ExactBeatsPositional(t *testing.T) {
	entry := RunEntry{
		TargetCols:    []int{0, 1},
		TargetHeaders: []string{"A", "B"},
	}

	// Key "B" at position 0 must match the header, not the position.
	col, ok := resolveColumn(entry, "B", 0)
	if !ok || col != 1 {
		t.Errorf("Expected header match to win over position, got col %d ok %v", col, ok)
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Employee Count", "employeecount"},
		{"employee_count", "employeecount"},
		{"Q3 Revenue ($M)", "q3revenuem"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeHeader(tt.in); got != tt.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"Hank Scorpio"`, "Hank Scorpio"},
		{"integer", `42`, "42"},
		{"float", `3.14`, "3.14"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
		{"object", `{"a": 1}`, `{"a":1}`},
		{"array", `[1, 2]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("formatValue(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
