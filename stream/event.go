// Package stream handles the text/event-stream wire format: decoding frames
// from a raw byte stream, encoding them back out, and the Source transport
// that prepares a group's event feed for reconciliation.
package stream

import (
	"fmt"
	"io"
	"strings"
)

// Event is one discrete frame from an event stream.
type Event struct {
	// Type is the frame's event: field ("" when absent).
	Type string

	// ID is the frame's id: field ("" when absent).
	ID string

	// Data is the frame's payload, with multi-line data fields joined by
	// newlines.
	Data []byte
}

// WriteEvent writes a single frame in event-stream framing, terminated by a
// blank line.
func WriteEvent(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComment writes a comment frame. Comments carry no event data; they
// exist to defeat intermediary buffering and keep connections warm.
func WriteComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}
