package enrich

// RunEntry is the durable record a run identifier resolves to: the grid
// coordinates that run is responsible for populating.
type RunEntry struct {
	Row           int      `json:"row"`
	TargetCols    []int    `json:"target_cols"`
	TargetHeaders []string `json:"target_headers"`
}

// CorrelationTable maps run identifier to its RunEntry. Built once per run,
// read-only afterward; it is the single source of truth tying an
// asynchronous result back to grid coordinates.
type CorrelationTable map[string]RunEntry

// BuildCorrelation pairs returned run identifiers positionally with the
// submitted job specs. An empty identifier, or one with no positional spec,
// is dropped: events for such ids are unroutable and are ignored later
// rather than inserted here.
func BuildCorrelation(runIDs []string, specs []JobSpec) CorrelationTable {
	table := make(CorrelationTable, len(runIDs))
	for i, id := range runIDs {
		if id == "" || i >= len(specs) {
			continue
		}
		table[id] = RunEntry{
			Row:           specs[i].Row,
			TargetCols:    specs[i].TargetCols,
			TargetHeaders: specs[i].TargetHeaders,
		}
	}
	return table
}
