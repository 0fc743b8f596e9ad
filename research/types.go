package research

import (
	"encoding/json"
	"fmt"
)

// Processor is the quality/cost tier a task group runs at, least to most
// thorough.
type Processor string

const (
	ProcessorLite Processor = "lite"
	ProcessorBase Processor = "base"
	ProcessorCore Processor = "core"
	ProcessorPro  Processor = "pro"
)

// Processors lists the valid tiers in ascending thoroughness.
var Processors = []Processor{ProcessorLite, ProcessorBase, ProcessorCore, ProcessorPro}

// Valid reports whether p is one of the enumerated tiers.
func (p Processor) Valid() bool {
	for _, known := range Processors {
		if p == known {
			return true
		}
	}
	return false
}

// TaskSpec describes one research task: the instruction, the row context the
// task may draw on, and the strict schema its output must satisfy.
type TaskSpec struct {
	Prompt       string       `json:"prompt"`
	OutputSchema OutputSchema `json:"output_schema"`
}

// OutputSchema wraps the JSON schema the service enforces on task output.
type OutputSchema struct {
	Type   string     `json:"type"`
	Schema JSONSchema `json:"json_schema"`
}

// JSONSchema is the subset of JSON Schema the service accepts for outputs.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes a single output field.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ClosedObjectSchema builds a closed object schema whose required keys are
// exactly the given field names. No extra keys are permitted.
func ClosedObjectSchema(fields []string) OutputSchema {
	props := make(map[string]Property, len(fields))
	for _, f := range fields {
		props[f] = Property{
			Type:        "string",
			Description: fmt.Sprintf("Value for the %q column", f),
		}
	}
	return OutputSchema{
		Type: "json",
		Schema: JSONSchema{
			Type:                 "object",
			Properties:           props,
			Required:             append([]string(nil), fields...),
			AdditionalProperties: false,
		},
	}
}

// RunInput is one entry in a batched run submission.
type RunInput struct {
	Input     map[string]string `json:"input"`
	Processor Processor         `json:"processor"`
	TaskSpec  TaskSpec          `json:"task_spec"`
}

// Run states reported on the event stream.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Event types on the group event stream. Anything else is ignored by
// consumers for forward compatibility.
const (
	EventRunState    = "task_run.state"
	EventGroupStatus = "task_group_status"
)

// RunStateEvent is the payload of a task_run.state event.
type RunStateEvent struct {
	Run    RunRef     `json:"run"`
	Output *RunOutput `json:"output,omitempty"`
}

// RunRef identifies a run and its current state.
type RunRef struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunOutput carries the structured result of a completed run. Content is kept
// raw so consumers can preserve key order.
type RunOutput struct {
	Content json.RawMessage `json:"content"`
}

// GroupStatusEvent is the payload of a task_group_status event.
type GroupStatusEvent struct {
	Status GroupStatus `json:"status"`
}

// GroupStatus summarizes a group's progress. IsActive false means all work,
// success and failure alike, is accounted for.
type GroupStatus struct {
	IsActive     bool           `json:"is_active"`
	NumTaskRuns  int            `json:"num_task_runs"`
	StatusCounts map[string]int `json:"task_run_status_counts,omitempty"`
}

// RunResult is the response of the run result endpoint.
type RunResult struct {
	RunID  string     `json:"run_id"`
	Output *RunOutput `json:"output,omitempty"`
}

// APIError is an error response from the research service.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("research API error (status %d): %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("research API error (status %d): %s", e.StatusCode, e.Message)
}
