package stream

import (
	"bufio"
	"io"
	"strings"
)

// Decoder parses event-stream framing into discrete events. Frames end on a
// blank line; a partial trailing frame is buffered across reads until its
// terminator arrives.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps a raw event-stream reader.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. Comment-only frames are skipped. At
// end of input a pending unterminated frame is returned first, then io.EOF.
func (d *Decoder) Next() (Event, error) {
	var ev Event
	var data []string
	seen := false

	flush := func() Event {
		ev.Data = []byte(strings.Join(data, "\n"))
		return ev
	}

	for {
		line, err := d.r.ReadString('\n')
		atEOF := err == io.EOF
		if err != nil && !atEOF {
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if seen {
				return flush(), nil
			}
			if atEOF {
				return Event{}, io.EOF
			}
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")

			switch field {
			case "event":
				ev.Type = value
				seen = true
			case "id":
				ev.ID = value
				seen = true
			case "data":
				data = append(data, value)
				seen = true
			default:
				// Unknown fields are ignored per the event-stream format.
			}
		}

		if atEOF {
			if seen {
				// Unterminated trailing frame.
				return flush(), nil
			}
			return Event{}, io.EOF
		}
	}
}
