// Package proxy re-exposes the enrichment workflow over HTTP for consumers
// other than the built-in terminal UI: batch submission with correlation,
// the group event stream (SSE or WebSocket) with output backfill, and
// best-effort cancellation.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"gridfill/enrich"
	"gridfill/grid"
	"gridfill/research"
	"gridfill/stream"
)

// Server proxies the research service for local consumers.
type Server struct {
	client *research.Client
	log    *log.Logger
	mux    *http.ServeMux
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		s.log = logger
	}
}

// NewServer creates a proxy server backed by a research client.
func NewServer(client *research.Client, opts ...ServerOption) *Server {
	s := &Server{
		client: client,
		log:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/enrich", s.handleEnrich)
	mux.HandleFunc("GET /api/groups/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/groups/{id}/events/ws", s.handleEventsWS)
	mux.HandleFunc("POST /api/groups/{id}/cancel", s.handleCancel)
	s.mux = mux
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// enrichRequest is the submission payload: the selected region, the grid
// snapshot it refers to, and the processor tier.
type enrichRequest struct {
	Selection grid.Selection     `json:"selection"`
	Headers   []string           `json:"headers"`
	Rows      [][]string         `json:"rows"`
	Processor research.Processor `json:"processor"`
}

// enrichResponse returns the group identifier and the correlation from run
// id to the cells that run must populate.
type enrichResponse struct {
	GroupID     string                  `json:"group_id"`
	Correlation enrich.CorrelationTable `json:"correlation"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Headers) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("headers are required"))
		return
	}
	if !req.Processor.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown processor tier %q", req.Processor))
		return
	}

	g := grid.New(req.Headers, req.Rows)
	specs := enrich.BuildJobSpecs(g, req.Selection)
	if len(specs) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("selection contains no data rows"))
		return
	}

	groupID, err := s.client.CreateGroup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	runIDs, err := s.client.AddRuns(r.Context(), groupID, enrich.RunInputs(specs, req.Processor))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.log.Info("batch submitted", "group_id", groupID, "jobs", len(specs), "processor", req.Processor)
	s.writeJSON(w, http.StatusOK, enrichResponse{
		GroupID:     groupID,
		Correlation: enrich.BuildCorrelation(runIDs, specs),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	body, err := s.client.OpenEvents(r.Context(), groupID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	src := stream.NewSource(body, s.client, s.log)
	defer src.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Once the consumer disconnects, all further writes become no-ops; the
	// remote read loop still ends promptly via the request context.
	out := &safeWriter{w: w, flusher: flusher}

	// Fire a comment immediately to defeat intermediary buffering.
	out.comment("ok")

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	frames := make(chan stream.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			ev, err := src.Next(r.Context())
			if err != nil {
				errs <- err
				return
			}
			select {
			case frames <- ev:
			case <-r.Context().Done():
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			out.comment("keep-alive")
		case ev, open := <-frames:
			if !open {
				err := <-errs
				if err != io.EOF && r.Context().Err() == nil {
					s.log.Warn("upstream stream ended abnormally", "group_id", groupID, "err", err)
				}
				return
			}
			out.event(ev)
		}
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	// Best-effort: remote jobs are not guaranteed to stop. The ack below
	// only confirms that local listeners should stand down.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.client.CancelGroup(ctx, groupID); err != nil {
		s.log.Warn("remote cancel failed", "group_id", groupID, "err", err)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"group_id": groupID,
		"status":   "cancelled",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Warn("request failed", "status", status, "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// safeWriter forwards frames to the response until the first write failure,
// after which it silently discards everything.
type safeWriter struct {
	w       io.Writer
	flusher http.Flusher
	dead    bool
}

func (sw *safeWriter) event(ev stream.Event) {
	if sw.dead {
		return
	}
	if err := stream.WriteEvent(sw.w, ev); err != nil {
		sw.dead = true
		return
	}
	sw.flusher.Flush()
}

func (sw *safeWriter) comment(c string) {
	if sw.dead {
		return
	}
	if err := stream.WriteComment(sw.w, c); err != nil {
		sw.dead = true
		return
	}
	sw.flusher.Flush()
}
