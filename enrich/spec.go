// Package enrich orchestrates a batch of web-research jobs over a selected
// grid region: it builds one job per selected row, submits them as a single
// group, correlates returned run identifiers back to cell coordinates, and
// reconciles the group's event stream against pending cell state until the
// run completes, is cancelled, or times out.
package enrich

import (
	"fmt"
	"sort"
	"strings"

	"gridfill/grid"
	"gridfill/research"
)

// JobSpec describes one research job: a single target row, the full row as
// context, and the selected columns it must fill. Immutable once built.
type JobSpec struct {
	// Row is the target data row.
	Row int

	// Context is the whole row keyed by header name, so the job sees the
	// full row even though only some columns are targets.
	Context map[string]string

	// TargetHeaders are the selected columns' header names, left to right.
	TargetHeaders []string

	// TargetCols are the matching column indices, parallel to TargetHeaders.
	TargetCols []int
}

// BuildJobSpecs turns a selection into one JobSpec per selected row, in
// ascending row order. This order is later assumed identical to the order of
// run identifiers returned by the service.
func BuildJobSpecs(g *grid.Grid, sel grid.Selection) []JobSpec {
	sel = sel.Clamp(g)
	cols := sel.Cols()

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = g.Header(c)
	}

	var specs []JobSpec
	for _, row := range sel.Rows() {
		specs = append(specs, JobSpec{
			Row:           row,
			Context:       g.RowContext(row),
			TargetHeaders: headers,
			TargetCols:    cols,
		})
	}
	return specs
}

// RunInputs converts job specs into the batched submission payload. Every
// input carries the instruction plus row context, a closed output schema
// requiring exactly the target headers, and the chosen tier.
func RunInputs(specs []JobSpec, proc research.Processor) []research.RunInput {
	inputs := make([]research.RunInput, 0, len(specs))
	for _, spec := range specs {
		inputs = append(inputs, research.RunInput{
			Input:     spec.Context,
			Processor: proc,
			TaskSpec: research.TaskSpec{
				Prompt:       buildPrompt(spec),
				OutputSchema: research.ClosedObjectSchema(spec.TargetHeaders),
			},
		})
	}
	return inputs
}

// buildPrompt creates the natural-language instruction for one job.
func buildPrompt(spec JobSpec) string {
	var sb strings.Builder

	sb.WriteString("You are researching a single row of a spreadsheet. Using the row context below, find accurate, current values for the requested columns.\n\n")

	sb.WriteString("Row context:\n")
	keys := make([]string, 0, len(spec.Context))
	for k := range spec.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := spec.Context[k]
		if v == "" {
			v = "(empty)"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", k, v)
	}

	sb.WriteString("\nFill in these columns: ")
	sb.WriteString(strings.Join(spec.TargetHeaders, ", "))
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("1. Return a JSON object whose keys are exactly the requested column names.\n")
	sb.WriteString("2. Keep each value short: a name, number, date, or short phrase, not a sentence.\n")
	sb.WriteString("3. If a value cannot be found with reasonable confidence, use an empty string.\n")

	return sb.String()
}
