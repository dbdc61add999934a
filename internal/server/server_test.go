package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/engine"
	"github.com/landloop/territory-engine/internal/index"
	"github.com/landloop/territory-engine/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu          sync.Mutex
	territories []*model.Territory
	submitted   []*model.TerritoryDraft
}

func (s *memStore) TerritoriesInRegion(ctx context.Context, region geo.BBox) ([]*model.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.territories, nil
}

func (s *memStore) SubmitClaim(ctx context.Context, draft *model.TerritoryDraft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, draft)
	return fmt.Sprintf("terr-%d", len(s.submitted)), nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Closure.MinPoints = 11
	cfg.Area.MinM2 = 1000
	idx := index.New(cfg.Index.CellSizeM)
	eng := engine.New(cfg, idx, &memStore{})
	srv := New(cfg.Server, eng, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		eng.Close()
	})
	return srv, ts
}

// walkFixes traces a 40 m square from (52, 13), twelve fixes ten seconds
// apart, ending within closure distance of the start.
func walkFixes() []wireFix {
	dLat := 40.0 / 111320.0 / 3
	dLon := 40.0 / 68500.0 / 3
	pts := []geo.Point{
		{Lat: 52.0, Lon: 13.0},
		{Lat: 52.0, Lon: 13.0 + dLon},
		{Lat: 52.0, Lon: 13.0 + 2*dLon},
		{Lat: 52.0, Lon: 13.0 + 3*dLon},
		{Lat: 52.0 + dLat, Lon: 13.0 + 3*dLon},
		{Lat: 52.0 + 2*dLat, Lon: 13.0 + 3*dLon},
		{Lat: 52.0 + 3*dLat, Lon: 13.0 + 3*dLon},
		{Lat: 52.0 + 3*dLat, Lon: 13.0 + 2*dLon},
		{Lat: 52.0 + 3*dLat, Lon: 13.0 + dLon},
		{Lat: 52.0 + 3*dLat, Lon: 13.0},
		{Lat: 52.0 + 2*dLat, Lon: 13.0},
		{Lat: 52.0 + dLat, Lon: 13.0},
	}
	fixes := make([]wireFix, len(pts))
	for i, p := range pts {
		fixes[i] = wireFix{Lat: p.Lat, Lon: p.Lon, AccuracyM: 5, Time: t0.Add(time.Duration(i) * 10 * time.Second)}
	}
	return fixes
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	fixes := walkFixes()

	resp := postJSON(t, ts.URL+"/v1/sessions", startRequest{OwnerID: "alice", Fix: fixes[0]})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	started := decodeBody[startResponse](t, resp)
	if started.Status.State != "tracking" || started.Status.Points != 1 {
		t.Fatalf("start response = %+v", started)
	}

	// Second start for the same owner conflicts.
	resp = postJSON(t, ts.URL+"/v1/sessions", startRequest{OwnerID: "alice", Fix: fixes[0]})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	for _, f := range fixes[1:] {
		resp = postJSON(t, ts.URL+"/v1/sessions/alice/fixes", f)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("ingest status = %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/sessions/alice")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	state := decodeBody[engine.Status](t, resp)
	if !state.Closed || state.Points != 12 {
		t.Fatalf("state = %+v, want closed 12-point path", state)
	}

	resp = postJSON(t, ts.URL+"/v1/sessions/alice/close", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}
	closed := decodeBody[closeResponse](t, resp)
	if !closed.Verdict.Accepted || closed.TerritoryID == "" {
		t.Fatalf("close response = %+v", closed)
	}

	// The session is gone once validated.
	resp, err = http.Get(ts.URL + "/v1/sessions/alice")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("state after close status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCancelSession(t *testing.T) {
	_, ts := newTestServer(t)
	fixes := walkFixes()

	resp := postJSON(t, ts.URL+"/v1/sessions", startRequest{OwnerID: "bob", Fix: fixes[0]})
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/bob", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/sessions/bob")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("state after cancel status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownSessionIs404(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/sessions/nobody/fixes", wireFix{Lat: 52, Lon: 13, AccuracyM: 5, Time: t0})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ingest without session status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownFrameRejected(t *testing.T) {
	_, ts := newTestServer(t)
	fix := walkFixes()[0]
	fix.Frame = "bd09"
	resp := postJSON(t, ts.URL+"/v1/sessions", startRequest{OwnerID: "dave", Fix: fix})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown frame status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebSocketStreamIngestsFixes(t *testing.T) {
	_, ts := newTestServer(t)
	fixes := walkFixes()

	resp := postJSON(t, ts.URL+"/v1/sessions", startRequest{OwnerID: "carol", Fix: fixes[0]})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/carol/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(fixes[1]); err != nil {
		t.Fatalf("send fix: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg streamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if msg.Type != "ingest" || msg.Ingest == nil || !msg.Ingest.Accepted {
		t.Fatalf("ack = %+v, want accepted ingest", msg)
	}
	if msg.Ingest.Points != 2 {
		t.Errorf("points = %d, want 2", msg.Ingest.Points)
	}
}

func TestStreamWithoutSessionIs404(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/sessions/nobody/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stream without session status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
