package enrich

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// field is one key/value pair from a job's output object, in wire order.
type field struct {
	Key   string
	Value json.RawMessage
}

// orderedFields decodes a JSON object preserving key order, which the
// positional resolution tier depends on.
func orderedFields(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse output object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("output is not a JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse output key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in output object", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to parse value for %q: %w", key, err)
		}
		fields = append(fields, field{Key: key, Value: value})
	}
	return fields, nil
}

// resolveColumn maps an output key to one of the entry's target columns:
// exact header match first, then case/punctuation-insensitive match, then
// positional. Returns false when the key resolves to no column.
func resolveColumn(entry RunEntry, key string, pos int) (int, bool) {
	for i, h := range entry.TargetHeaders {
		if h == key {
			return entry.TargetCols[i], true
		}
	}

	normalized := normalizeHeader(key)
	for i, h := range entry.TargetHeaders {
		if normalizeHeader(h) == normalized {
			return entry.TargetCols[i], true
		}
	}

	if pos >= 0 && pos < len(entry.TargetCols) {
		return entry.TargetCols[pos], true
	}
	return 0, false
}

// normalizeHeader lowercases a header and strips everything but letters and
// digits, so "Employee Count" and "employee_count" compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range h {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// formatValue renders a JSON scalar as cell text. Objects and arrays are
// kept as compact JSON.
func formatValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return strings.TrimSpace(string(raw))
		}
		return buf.String()
	}
}
