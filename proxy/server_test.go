package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridfill/enrich"
	"gridfill/grid"
	"gridfill/research"
	"gridfill/stream"
)

// upstream fakes the research service behind the proxy.
type upstream struct {
	mux    *http.ServeMux
	events string

	mu        sync.Mutex
	cancelled []string
}

func sseFrame(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

func newUpstream(events string) *upstream {
	u := &upstream{events: events, mux: http.NewServeMux()}

	u.mux.HandleFunc("POST /v1beta/tasks/groups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"taskgroup_id": "tg_proxy"})
	})
	u.mux.HandleFunc("POST /v1beta/tasks/groups/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []research.RunInput `json:"inputs"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		ids := make([]string, len(req.Inputs))
		for i := range ids {
			ids[i] = fmt.Sprintf("run_%d", i+1)
		}
		json.NewEncoder(w).Encode(map[string][]string{"run_ids": ids})
	})
	u.mux.HandleFunc("GET /v1beta/tasks/groups/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(u.events))
	})
	u.mux.HandleFunc("POST /v1beta/tasks/groups/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.cancelled = append(u.cancelled, r.PathValue("id"))
		u.mu.Unlock()
		w.Write([]byte(`{}`))
	})

	return u
}

func newTestProxy(t *testing.T, u *upstream) *httptest.Server {
	t.Helper()

	upstreamServer := httptest.NewServer(u.mux)
	t.Cleanup(upstreamServer.Close)

	client, err := research.NewClient("test-key", research.WithBaseURL(upstreamServer.URL))
	if err != nil {
		t.Fatal(err)
	}

	proxyServer := httptest.NewServer(NewServer(client).Handler())
	t.Cleanup(proxyServer.Close)
	return proxyServer
}

func enrichBody() []byte {
	body, _ := json.Marshal(enrichRequest{
		Selection: grid.Selection{Start: grid.Coord{Row: 1, Col: 1}, End: grid.Coord{Row: 2, Col: 1}},
		Headers:   []string{"Company", "CEO"},
		Rows:      [][]string{{"Acme", ""}, {"Globex", ""}},
		Processor: research.ProcessorBase,
	})
	return body
}

func TestServer_Enrich(t *testing.T) {
	proxy := newTestProxy(t, newUpstream(""))

	resp, err := http.Post(proxy.URL+"/api/enrich", "application/json", bytes.NewReader(enrichBody()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		GroupID     string                  `json:"group_id"`
		Correlation enrich.CorrelationTable `json:"correlation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.GroupID != "tg_proxy" {
		t.Errorf("Expected group id tg_proxy, got %q", result.GroupID)
	}
	if len(result.Correlation) != 2 {
		t.Fatalf("Expected 2 correlation entries, got %d", len(result.Correlation))
	}
	if entry := result.Correlation["run_1"]; entry.Row != 1 {
		t.Errorf("Expected run_1 mapped to row 1, got %+v", entry)
	}
	if entry := result.Correlation["run_2"]; entry.Row != 2 {
		t.Errorf("Expected run_2 mapped to row 2, got %+v", entry)
	}
}

func TestServer_EnrichValidation(t *testing.T) {
	proxy := newTestProxy(t, newUpstream(""))

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"missing headers", `{"selection":{"start":{"row":1,"col":0},"end":{"row":1,"col":0}},"rows":[["x"]],"processor":"base"}`},
		{"unknown tier", `{"selection":{"start":{"row":1,"col":0},"end":{"row":1,"col":0}},"headers":["A"],"rows":[["x"]],"processor":"turbo"}`},
		{"header-only selection", `{"selection":{"start":{"row":0,"col":0},"end":{"row":0,"col":0}},"headers":["A"],"rows":[],"processor":"base"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(proxy.URL+"/api/enrich", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_Events(t *testing.T) {
	events := sseFrame(research.EventRunState,
		`{"run":{"run_id":"run_1","status":"completed"},"output":{"content":{"CEO":"x"}}}`) +
		sseFrame(research.EventGroupStatus, `{"status":{"is_active":false}}`)
	proxy := newTestProxy(t, newUpstream(events))

	resp, err := http.Get(proxy.URL + "/api/groups/tg_proxy/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", got)
	}

	// The handler returns once the group goes inactive, so the body is
	// finite and can be drained.
	dec := stream.NewDecoder(resp.Body)

	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Expected run state frame, got %v", err)
	}
	if ev.Type != research.EventRunState {
		t.Errorf("Expected %q, got %q", research.EventRunState, ev.Type)
	}

	ev, err = dec.Next()
	if err != nil {
		t.Fatalf("Expected group status frame, got %v", err)
	}
	if ev.Type != research.EventGroupStatus {
		t.Errorf("Expected %q, got %q", research.EventGroupStatus, ev.Type)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected stream to end after inactive status, got %v", err)
	}
}

func TestServer_Cancel(t *testing.T) {
	u := newUpstream("")
	proxy := newTestProxy(t, u)

	resp, err := http.Post(proxy.URL+"/api/groups/tg_proxy/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	if ack["status"] != "cancelled" || ack["group_id"] != "tg_proxy" {
		t.Errorf("Unexpected ack: %v", ack)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.cancelled) != 1 || u.cancelled[0] != "tg_proxy" {
		t.Errorf("Expected upstream cancel for tg_proxy, got %v", u.cancelled)
	}
}

func TestServer_EventsWS(t *testing.T) {
	events := sseFrame(research.EventRunState,
		`{"run":{"run_id":"run_1","status":"completed"},"output":{"content":{"CEO":"x"}}}`) +
		sseFrame(research.EventGroupStatus, `{"status":{"is_active":false}}`)
	proxy := newTestProxy(t, newUpstream(events))

	wsURL := "ws" + strings.TrimPrefix(proxy.URL, "http") + "/api/groups/tg_proxy/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	var first wsEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Failed to read first frame: %v", err)
	}
	if first.Type != research.EventRunState {
		t.Errorf("Expected run state frame, got %q", first.Type)
	}
	if !json.Valid(first.Data) {
		t.Error("Expected JSON payload in frame")
	}

	var second wsEvent
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("Failed to read second frame: %v", err)
	}
	if second.Type != research.EventGroupStatus {
		t.Errorf("Expected group status frame, got %q", second.Type)
	}

	// After the inactive status the server closes normally.
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
}

func TestServer_EventsWSConsumerDisconnectReleasesUpstream(t *testing.T) {
	// When the WebSocket consumer goes away mid-stream, the handler must
	// release the upstream stream instead of waiting for the next frame.
	upstreamReleased := make(chan struct{})
	u := &upstream{mux: http.NewServeMux()}
	u.mux.HandleFunc("GET /v1beta/tasks/groups/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseFrame(research.EventGroupStatus, `{"status":{"is_active":true}}`)))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamReleased)
	})
	proxy := newTestProxy(t, u)

	wsURL := "ws" + strings.TrimPrefix(proxy.URL, "http") + "/api/groups/tg_proxy/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer resp.Body.Close()

	var first wsEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Failed to read first frame: %v", err)
	}

	conn.Close()

	select {
	case <-upstreamReleased:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected upstream stream closed after consumer disconnect")
	}
}
