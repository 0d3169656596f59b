package playout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/blocks"
	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/scheduler"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeStream struct {
	mu        sync.Mutex
	alive     bool
	startErr  error
	starts    int
	items     []mediaengine.QueueItem
	queueLens []int
}

func (s *fakeStream) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.alive = true
	return nil
}

func (s *fakeStream) Enqueue(_ context.Context, item mediaengine.QueueItem, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

func (s *fakeStream) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queueLens) == 0 {
		return 0
	}
	n := s.queueLens[0]
	s.queueLens = s.queueLens[1:]
	return n
}

func (s *fakeStream) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *fakeStream) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *fakeStream) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Label)
	}
	return out
}

type fakeRunner struct {
	mu     sync.Mutex
	jingle string
	runs   []scheduler.BlockDecision
	result blocks.Result
	err    error
	onRun  func(n int)
}

func (r *fakeRunner) Run(_ context.Context, decision scheduler.BlockDecision) (blocks.Result, error) {
	r.mu.Lock()
	r.runs = append(r.runs, decision)
	n := len(r.runs)
	res, err, hook := r.result, r.err, r.onRun
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return res, err
}

func (r *fakeRunner) JinglePath() string { return r.jingle }

func (r *fakeRunner) Runs() []scheduler.BlockDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduler.BlockDecision(nil), r.runs...)
}

type fakeFiller struct{ err error }

func (f fakeFiller) EnsureFillerAsset(context.Context, int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/cache/filler/silence_8s.mp3", nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	entries []models.PlayHistory
}

func (r *fakeRecorder) Record(_ context.Context, entry models.PlayHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

type harness struct {
	clock    *fakeClock
	ctrl     *scheduler.Controller
	runner   *fakeRunner
	stream   *fakeStream
	recorder *fakeRecorder
	bus      *events.Bus
	director *Director
}

func testOptions() Options {
	return Options{
		FillerSeconds:        8,
		KeepAliveInterval:    time.Millisecond,
		PostBlockPause:       time.Millisecond,
		MusicFailurePause:    time.Millisecond,
		NotConfiguredBackoff: time.Millisecond,
		TestStreamItems:      4,
	}
}

func newHarness(t *testing.T, now time.Time, override bool) *harness {
	t.Helper()
	schedule := scheduler.Schedule{
		Location:     time.UTC,
		NewsHours:    map[int]bool{9: true},
		WeatherHours: map[int]bool{10: true},
		PodcastFiles: map[int]string{11: "4.mp4"},
	}
	h := &harness{
		clock:    &fakeClock{now: now},
		runner:   &fakeRunner{},
		stream:   &fakeStream{},
		recorder: &fakeRecorder{},
		bus:      events.NewBus(),
	}
	h.ctrl = scheduler.NewController(schedule, override, h.clock, nil, nil, zerolog.Nop())
	h.director = NewDirector(h.ctrl, h.runner, h.stream, fakeFiller{}, h.recorder, h.bus, testOptions(), zerolog.Nop())
	return h
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestJingleMarkedEvenOnFailure(t *testing.T) {
	h := newHarness(t, at(8, 0), false)
	h.runner.err = blocks.ErrAssetUnavailable

	decision := h.ctrl.Decide(context.Background())
	if decision.Type != scheduler.BlockJingle {
		t.Fatalf("expected jingle, got %s", decision.Type)
	}
	if err := h.director.runBlock(context.Background(), decision, h.ctrl.Now()); !errors.Is(err, blocks.ErrAssetUnavailable) {
		t.Fatalf("expected asset error, got %v", err)
	}

	if st := h.ctrl.State(); st.LastJingleHour == nil || *st.LastJingleHour != 8 {
		t.Fatalf("jingle not marked: %+v", st)
	}
	if next := h.ctrl.Decide(context.Background()); next.Type != scheduler.BlockMusic {
		t.Fatalf("expected music after jingle, got %s", next.Type)
	}
}

func TestAnchorMarkedForStartHourEvenOnFailure(t *testing.T) {
	h := newHarness(t, at(9, 59), false)
	h.runner.onRun = func(int) { h.clock.Set(at(10, 1)) }
	h.runner.err = blocks.ErrProducer

	decision := h.ctrl.Decide(context.Background())
	if decision.Type != scheduler.BlockNews {
		t.Fatalf("expected news, got %s", decision.Type)
	}
	startedAt := h.ctrl.Now()
	if err := h.director.runBlock(context.Background(), decision, startedAt); !errors.Is(err, blocks.ErrProducer) {
		t.Fatalf("expected producer error, got %v", err)
	}

	if st := h.ctrl.State(); st.LastAnchorHour == nil || *st.LastAnchorHour != 9 {
		t.Fatalf("anchor should be marked for hour 9: %+v", st)
	}
	// Hour 10 still gets its own anchor.
	if next := h.ctrl.Decide(context.Background()); next.Type != scheduler.BlockWeather {
		t.Fatalf("expected weather at 10:01, got %s", next.Type)
	}
	if h.stream.Starts() != 0 {
		t.Fatal("failed anchor must not enter keep-alive")
	}
}

func TestKeepAliveRestartsWhileQueued(t *testing.T) {
	h := newHarness(t, at(9, 5), false)
	h.stream.queueLens = []int{2, 1, 0}

	if err := h.director.runBlock(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockNews}, h.ctrl.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.stream.Starts(); got != 2 {
		t.Fatalf("expected 2 keep-alive restarts, got %d", got)
	}
}

func TestKeepAliveStopsAtEndOfHour(t *testing.T) {
	h := newHarness(t, at(9, 59), false)
	h.stream.queueLens = []int{5, 5, 5, 5, 5}
	h.clock.Set(at(10, 0))

	h.director.keepAlive(context.Background(), at(9, 59))
	if got := h.stream.Starts(); got != 0 {
		t.Fatalf("expected no restarts past the hour, got %d", got)
	}
}

func TestMusicLoopRunsUntilScheduleChanges(t *testing.T) {
	h := newHarness(t, at(8, 30), false)
	h.ctrl.MarkJinglePlayed(context.Background())
	h.runner.onRun = func(n int) {
		if n == 3 {
			h.clock.Set(at(9, 0))
		}
	}

	if err := h.director.runBlock(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockMusic}, h.ctrl.Now()); err != nil {
		t.Fatalf("music loop: %v", err)
	}
	if runs := h.runner.Runs(); len(runs) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(runs))
	}
	if next := h.ctrl.Decide(context.Background()); next.Type != scheduler.BlockJingle {
		t.Fatalf("expected jingle at the top of the hour, got %s", next.Type)
	}
}

func TestMusicLoopDefersOnFullQueue(t *testing.T) {
	h := newHarness(t, at(8, 30), false)
	h.ctrl.MarkJinglePlayed(context.Background())
	h.director.opts.MusicFailurePause = time.Hour
	h.runner.result = blocks.Result{Label: "Artist - Song", TrackID: "2"}
	h.runner.err = fmt.Errorf("deliver Artist - Song: %w", mediaengine.ErrEnqueueTimeout)
	h.runner.onRun = func(n int) {
		h.runner.mu.Lock()
		defer h.runner.mu.Unlock()
		switch n {
		case 1:
			h.runner.err = nil
		case 2:
			h.clock.Set(at(9, 0))
		}
	}
	sub := h.bus.Subscribe(events.EventBlockEnd)
	defer h.bus.Unsubscribe(events.EventBlockEnd, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.director.runBlock(ctx, scheduler.BlockDecision{Type: scheduler.BlockMusic}, h.ctrl.Now()); err != nil {
		t.Fatalf("music loop: %v", err)
	}

	if runs := h.runner.Runs(); len(runs) != 2 {
		t.Fatalf("expected the track to be retried at once, got %d runs", len(runs))
	}
	if first := <-sub; first["result"] != models.ResultDeferred || first["error"] != "" {
		t.Fatalf("full queue reported as %v", first)
	}
	if second := <-sub; second["result"] != models.ResultOK {
		t.Fatalf("retried track reported as %v", second)
	}
	if len(h.recorder.entries) != 1 || h.recorder.entries[0].Result != models.ResultOK || h.recorder.entries[0].TrackID != "2" {
		t.Fatalf("expected only the aired track in history, got %+v", h.recorder.entries)
	}
}

func TestFullQueueFailsNonMusicBlocks(t *testing.T) {
	h := newHarness(t, at(9, 5), false)
	h.runner.err = mediaengine.ErrEnqueueTimeout

	_ = h.director.play(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockNews})
	if len(h.recorder.entries) != 1 || h.recorder.entries[0].Result != models.ResultError {
		t.Fatalf("news that never queued must be recorded as a failure: %+v", h.recorder.entries)
	}
}

func TestMusicLoopReturnsNotConfigured(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	h.runner.err = mediaengine.ErrNotConfigured

	err := h.director.runBlock(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockMusic}, h.ctrl.Now())
	if !errors.Is(err, mediaengine.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if runs := h.runner.Runs(); len(runs) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(runs))
	}
}

func TestWarmupQueuesJingleOnlyWhenCold(t *testing.T) {
	jingle := filepath.Join(t.TempDir(), "jingle.mp3")
	if err := os.WriteFile(jingle, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, at(8, 30), true)
	h.runner.jingle = jingle
	ctx := context.Background()

	h.director.warmup(ctx, scheduler.BlockDecision{Type: scheduler.BlockMusic})
	if got := h.stream.Labels(); len(got) != 2 || got[0] != "jingle" || got[1] != "filler" {
		t.Fatalf("cold warmup queued %v", got)
	}

	h.director.warmup(ctx, scheduler.BlockDecision{Type: scheduler.BlockMusic})
	if got := h.stream.Labels(); len(got) != 2 {
		t.Fatalf("warm pipeline should queue nothing more, got %v", got)
	}

	h.director.warmup(ctx, scheduler.BlockDecision{Type: scheduler.BlockNews})
	if got := h.stream.Labels(); len(got) != 4 || got[2] != "filler" || got[3] != "filler" {
		t.Fatalf("news warmup queued %v", got)
	}
}

func TestWarmupSkipsJingleAndPodcast(t *testing.T) {
	h := newHarness(t, at(8, 0), false)
	h.director.warmup(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockJingle})
	h.director.warmup(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockPodcast, Argument: "4.mp4"})
	if h.stream.Starts() != 0 {
		t.Fatal("jingle and podcast blocks must not warm up the stream")
	}
}

func TestPlayRecordsHistoryAndEvents(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	h.runner.result = blocks.Result{
		Label:    "Artist - Song",
		TrackID:  "1234",
		Assets:   []string{"intro.mp3", "track_1234.mp3"},
		Delivery: mediaengine.DeliveryEnqueued,
	}
	sub := h.bus.SubscribeAll([]events.EventType{events.EventBlockStart, events.EventBlockEnd})
	defer h.bus.UnsubscribeAll([]events.EventType{events.EventBlockStart, events.EventBlockEnd}, sub)

	if err := h.director.play(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockMusic}); err != nil {
		t.Fatalf("play: %v", err)
	}

	start, end := <-sub, <-sub
	if start["type"] != string(events.EventBlockStart) || end["type"] != string(events.EventBlockEnd) {
		t.Fatalf("unexpected event order: %v, %v", start["type"], end["type"])
	}
	if start["run_id"] != end["run_id"] || end["block"] != "music" || end["result"] != models.ResultOK {
		t.Fatalf("unexpected block.end payload: %v", end)
	}

	if len(h.recorder.entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(h.recorder.entries))
	}
	entry := h.recorder.entries[0]
	if entry.RunID != start["run_id"] || entry.Intro != "intro.mp3" || entry.Main != "track_1234.mp3" || entry.TrackID != "1234" {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if entry.Delivery != mediaengine.DeliveryEnqueued.String() {
		t.Fatalf("unexpected delivery: %q", entry.Delivery)
	}

	st := h.director.Status()
	if st.LastResult != models.ResultOK || st.LastLabel != "Artist - Song" || st.Decision.Type != scheduler.BlockMusic {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestPlayRecordsFailure(t *testing.T) {
	h := newHarness(t, at(9, 5), false)
	h.runner.err = blocks.ErrProducer

	_ = h.director.play(context.Background(), scheduler.BlockDecision{Type: scheduler.BlockNews})
	if len(h.recorder.entries) != 1 || h.recorder.entries[0].Result != models.ResultError || h.recorder.entries[0].Error == "" {
		t.Fatalf("unexpected history: %+v", h.recorder.entries)
	}
	if st := h.director.Status(); st.LastError == "" {
		t.Fatal("status should carry the last error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	ctx, cancel := context.WithCancel(context.Background())
	h.runner.onRun = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.director.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("director did not stop")
	}
}

func TestRunBacksOffWhenNotConfigured(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	h.stream.startErr = mediaengine.ErrNotConfigured
	ctx, cancel := context.WithCancel(context.Background())
	h.runner.err = mediaengine.ErrNotConfigured
	h.runner.onRun = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	if err := h.director.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runs := h.runner.Runs(); len(runs) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(runs))
	}
}

func TestTestStreamQueuesFillers(t *testing.T) {
	h := newHarness(t, at(8, 30), true)

	n, err := h.director.TestStream(context.Background())
	if err != nil {
		t.Fatalf("test stream: %v", err)
	}
	if n != 4 || len(h.stream.Labels()) != 4 {
		t.Fatalf("expected 4 queued items, got %d/%d", n, len(h.stream.Labels()))
	}
	if h.director.Status().TestStream {
		t.Fatal("test stream flag should clear when done")
	}
}

func TestTestStreamRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	h.director.mu.Lock()
	h.director.testActive = true
	h.director.mu.Unlock()

	if _, err := h.director.TestStream(context.Background()); !errors.Is(err, ErrTestStreamRunning) {
		t.Fatalf("expected ErrTestStreamRunning, got %v", err)
	}
	if h.director.StartTestStream(context.Background()) {
		t.Fatal("StartTestStream should refuse while one is running")
	}
}

type gatedFiller struct{ gate chan struct{} }

func (f gatedFiller) EnsureFillerAsset(ctx context.Context, _ int) (string, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "/cache/filler/silence_8s.mp3", nil
}

func TestStartTestStreamAcceptsOneConcurrentCaller(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	gate := make(chan struct{})
	h.director.filler = gatedFiller{gate: gate}

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if h.director.StartTestStream(context.Background()) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted test stream, got %d", accepted)
	}
	if !h.director.Status().TestStream {
		t.Fatal("flag should be held as soon as the run is accepted")
	}

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for h.director.Status().TestStream && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.director.Status().TestStream {
		t.Fatal("flag should clear when the run ends")
	}
	if got := len(h.stream.Labels()); got != 4 {
		t.Fatalf("expected 4 queued items, got %d", got)
	}
}

func TestTestStreamFillerFailure(t *testing.T) {
	h := newHarness(t, at(8, 30), true)
	h.director.filler = fakeFiller{err: errors.New("ffmpeg missing")}

	if _, err := h.director.TestStream(context.Background()); err == nil {
		t.Fatal("expected filler error")
	}
	if h.stream.Starts() != 0 {
		t.Fatal("stream should not start without a filler asset")
	}
}
