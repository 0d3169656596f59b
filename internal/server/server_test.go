package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/history"
	"github.com/friendsincode/navo_radio/internal/logbuffer"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/playout"
	"github.com/friendsincode/navo_radio/internal/scheduler"
	"github.com/friendsincode/navo_radio/internal/scheduler/state"
)

type fakeDirector struct {
	mu      sync.Mutex
	status  playout.Status
	running bool
	started int
}

func (d *fakeDirector) Status() playout.Status { return d.status }

func (d *fakeDirector) StartTestStream(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return false
	}
	d.running = true
	d.started++
	return true
}

type fakeStream struct {
	configured bool
	playing    *mediaengine.QueueItem
}

func (s fakeStream) Stats() mediaengine.Stats {
	return mediaengine.Stats{State: mediaengine.ProcessStateRunning, Alive: true, QueueLength: 2, QueueCap: 8}
}

func (s fakeStream) NowPlaying() (mediaengine.QueueItem, bool) {
	if s.playing == nil {
		return mediaengine.QueueItem{}, false
	}
	return *s.playing, true
}

func (s fakeStream) Level() float64   { return 0.42 }
func (s fakeStream) Configured() bool { return s.configured }

type fakeScheduler struct{}

func (fakeScheduler) State() scheduler.State {
	return scheduler.State{LastJingleHour: state.Hour(9)}
}
func (fakeScheduler) OverrideMusic() bool { return false }
func (fakeScheduler) Now() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

type fakeHistory struct {
	last history.Query
	rows []models.PlayHistory
	err  error
}

func (h *fakeHistory) Recent(_ context.Context, q history.Query) ([]models.PlayHistory, error) {
	h.last = q
	return h.rows, h.err
}

func newTestAPI() (*statusAPI, *fakeDirector, *fakeHistory) {
	director := &fakeDirector{status: playout.Status{
		RunID:      "run-1",
		Decision:   scheduler.BlockDecision{Type: scheduler.BlockMusic},
		LastResult: models.ResultOK,
	}}
	hist := &fakeHistory{rows: []models.PlayHistory{{ID: "h1", BlockType: "news", Result: models.ResultOK}}}
	buf := logbuffer.New(10)
	buf.Add(logbuffer.Entry{Level: "info", Message: "block done", Component: "director", Fields: map[string]any{"block": "news"}})
	buf.Add(logbuffer.Entry{Level: "warn", Message: "track failed", Component: "director", Fields: map[string]any{"block": "music"}})

	api := &statusAPI{
		director:  director,
		stream:    fakeStream{configured: true, playing: &mediaengine.QueueItem{Main: "track_1.mp3", Label: "Artist - Song"}},
		sched:     fakeScheduler{},
		history:   hist,
		logBuffer: buf,
		bus:       events.NewBus(),
		version:   "test",
		logger:    zerolog.Nop(),
	}
	return api, director, hist
}

func getJSON(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode: %v (%s)", method, target, err, rr.Body.String())
		}
	}
	return rr.Code
}

func TestHealthAndLevel(t *testing.T) {
	api, _, _ := newTestAPI()
	router := newRouter(api)

	var health map[string]any
	if code := getJSON(t, router, http.MethodGet, "/healthz", &health); code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	if health["status"] != "ok" || health["configured"] != true {
		t.Fatalf("unexpected health body: %v", health)
	}

	var level map[string]float64
	getJSON(t, router, http.MethodGet, "/level", &level)
	if level["level"] != 0.42 {
		t.Fatalf("unexpected level: %v", level)
	}
}

func TestStatus(t *testing.T) {
	api, _, _ := newTestAPI()

	var resp statusResponse
	if code := getJSON(t, newRouter(api), http.MethodGet, "/api/v1/status", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Director.RunID != "run-1" || resp.Director.Decision.Type != scheduler.BlockMusic {
		t.Fatalf("unexpected director status: %+v", resp.Director)
	}
	if resp.Pipeline.QueueLength != 2 || resp.Pipeline.State != mediaengine.ProcessStateRunning {
		t.Fatalf("unexpected pipeline stats: %+v", resp.Pipeline)
	}
	if resp.NowPlaying == nil || resp.NowPlaying.Label != "Artist - Song" {
		t.Fatalf("unexpected now playing: %+v", resp.NowPlaying)
	}
	if resp.Scheduler.LastJingleHour == nil || *resp.Scheduler.LastJingleHour != 9 {
		t.Fatalf("unexpected scheduler state: %+v", resp.Scheduler)
	}
}

func TestHistoryQuery(t *testing.T) {
	api, _, hist := newTestAPI()
	router := newRouter(api)

	var body struct {
		History []models.PlayHistory `json:"history"`
		Count   int                  `json:"count"`
	}
	code := getJSON(t, router, http.MethodGet, "/api/v1/history?type=news&limit=5&since=2026-03-14T00:00:00Z", &body)
	if code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	if body.Count != 1 || body.History[0].ID != "h1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if hist.last.BlockType != "news" || hist.last.Limit != 5 || hist.last.Since.IsZero() {
		t.Fatalf("query not passed through: %+v", hist.last)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/history?limit=abc", http.StatusBadRequest},
		{"/api/v1/history?limit=-1", http.StatusBadRequest},
		{"/api/v1/history?since=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code := getJSON(t, router, http.MethodGet, tt.target, nil); code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.target, code, tt.want)
		}
	}

	hist.err = errors.New("db down")
	if code := getJSON(t, router, http.MethodGet, "/api/v1/history", nil); code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on db error, got %d", code)
	}
}

func TestLogsFilter(t *testing.T) {
	api, _, _ := newTestAPI()

	var body struct {
		Logs  []logbuffer.Entry `json:"logs"`
		Count int               `json:"count"`
	}
	getJSON(t, newRouter(api), http.MethodGet, "/api/v1/logs?block=music", &body)
	if body.Count != 1 || body.Logs[0].Message != "track failed" {
		t.Fatalf("unexpected logs: %+v", body)
	}
}

func TestTestStreamTrigger(t *testing.T) {
	api, director, _ := newTestAPI()
	router := newRouter(api)

	if code := getJSON(t, router, http.MethodPost, "/api/v1/test-stream", nil); code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d", code)
	}
	if code := getJSON(t, router, http.MethodPost, "/api/v1/test-stream", nil); code != http.StatusConflict {
		t.Fatalf("second trigger status = %d", code)
	}
	if director.started != 1 {
		t.Fatalf("expected one test stream, got %d", director.started)
	}

	api.stream = fakeStream{configured: false}
	if code := getJSON(t, router, http.MethodPost, "/api/v1/test-stream", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured trigger status = %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api, _, _ := newTestAPI()
	router := newRouter(api)
	getJSON(t, router, http.MethodGet, "/healthz", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "navoradio_api_requests_total") {
		t.Fatalf("metrics missing api counters: %d", rr.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	api, _, _ := newTestAPI()
	srv := httptest.NewServer(newRouter(api))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=block.start"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The subscription is registered asynchronously; publish until one lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				api.bus.Publish(events.EventBlockEnd, events.Payload{"block": "news"})
				api.bus.Publish(events.EventBlockStart, events.Payload{"block": "music"})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["type"] != string(events.EventBlockStart) || payload["block"] != "music" {
		t.Fatalf("unexpected event: %v", payload)
	}
}

func TestParseEventTypes(t *testing.T) {
	if got := parseEventTypes(""); len(got) != len(events.AllTypes) {
		t.Fatalf("empty filter should select all, got %v", got)
	}
	if got := parseEventTypes("block.end, bogus"); len(got) != 1 || got[0] != events.EventBlockEnd {
		t.Fatalf("unexpected filter: %v", got)
	}
	if got := parseEventTypes("bogus"); len(got) != len(events.AllTypes) {
		t.Fatalf("unknown-only filter should fall back to all, got %v", got)
	}
}
