package stream

import (
	"context"
	"encoding/json"
	"io"

	"github.com/charmbracelet/log"

	"gridfill/research"
)

// ResultFetcher fetches the stored output of a single completed run. It is
// satisfied by *research.Client.
type ResultFetcher interface {
	RunResult(ctx context.Context, runID string) (*research.RunResult, error)
}

// Source prepares a group's raw event stream for consumption: completed-run
// frames that arrive without an output are augmented by one synchronous
// result fetch, and the stream ends gracefully once the group goes inactive.
// A Source is not restartable; after io.EOF it stays drained.
type Source struct {
	dec     *Decoder
	body    io.Closer
	fetcher ResultFetcher
	log     *log.Logger
	done    bool
}

// NewSource wraps a raw event-stream body. The fetcher may be nil, in which
// case output backfill is disabled and frames pass through untouched.
func NewSource(body io.ReadCloser, fetcher ResultFetcher, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Source{
		dec:     NewDecoder(body),
		body:    body,
		fetcher: fetcher,
		log:     logger,
	}
}

// Next returns the next prepared frame, or io.EOF once the group has gone
// inactive or the underlying stream ended. The context is honored between
// frames and during backfill fetches.
func (s *Source) Next(ctx context.Context) (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	ev, err := s.dec.Next()
	if err != nil {
		if err == io.EOF {
			s.done = true
		}
		return Event{}, err
	}

	switch ev.Type {
	case research.EventRunState:
		return s.backfill(ctx, ev), nil
	case research.EventGroupStatus:
		var payload research.GroupStatusEvent
		if jsonErr := json.Unmarshal(ev.Data, &payload); jsonErr == nil && !payload.Status.IsActive {
			// Sole authoritative completion signal: emit it, then stop
			// reading even if more frames remain buffered.
			s.done = true
		}
	}
	return ev, nil
}

// backfill fetches the missing output for a completed run and re-emits an
// augmented frame. Any failure degrades to the original frame.
func (s *Source) backfill(ctx context.Context, ev Event) Event {
	if s.fetcher == nil {
		return ev
	}

	var payload research.RunStateEvent
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return ev
	}
	if payload.Run.Status != research.RunCompleted || payload.Output != nil {
		return ev
	}
	if payload.Run.RunID == "" {
		return ev
	}

	result, err := s.fetcher.RunResult(ctx, payload.Run.RunID)
	if err != nil || result.Output == nil {
		s.log.Warn("result backfill failed, forwarding original frame",
			"run_id", payload.Run.RunID, "err", err)
		return ev
	}

	payload.Output = result.Output
	data, err := json.Marshal(payload)
	if err != nil {
		return ev
	}
	ev.Data = data
	return ev
}

// Close releases the underlying stream.
func (s *Source) Close() error {
	s.done = true
	return s.body.Close()
}
