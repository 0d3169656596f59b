package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/config"
	"github.com/friendsincode/navo_radio/internal/scheduler/state"
)

func testSchedule() Schedule {
	return NewSchedule(config.DefaultSchedule(), time.UTC)
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestDecideJingleAtTopOfHourThenSuppressed(t *testing.T) {
	sched := testSchedule()
	var st State

	d, st := Decide(st, at(13, 0), sched, false)
	if d.Type != BlockJingle {
		t.Fatalf("expected jingle at 13:00, got %s", d.Type)
	}

	st = MarkJinglePlayed(st, at(13, 0), sched)

	d, _ = Decide(st, at(13, 1), sched, false)
	if d.Type == BlockJingle {
		t.Fatal("jingle repeated at 13:01 after being marked")
	}
	d, _ = Decide(st, at(13, 0), sched, false)
	if d.Type == BlockJingle {
		t.Fatal("jingle repeated at 13:00 after being marked")
	}
}

func TestDecideAnchorExclusiveUntilRollover(t *testing.T) {
	sched := testSchedule()

	for _, hour := range sched.AnchorHours() {
		st := MarkAnchorPlayed(State{}, at(hour, 5), sched)
		for minute := 1; minute < 60; minute++ {
			d, _ := Decide(st, at(hour, minute), sched, false)
			if d.Type != BlockMusic {
				t.Fatalf("hour %d minute %d: expected music after anchor, got %s", hour, minute, d.Type)
			}
		}

		next := (hour + 1) % 24
		_, normalised := Decide(st, at(next, 30), sched, false)
		if normalised.LastAnchorHour != nil {
			t.Fatalf("hour %d: anchor flag survived rollover", hour)
		}
	}
}

func TestDecideReevaluatesAfterRollover(t *testing.T) {
	sched := testSchedule()
	// 9 is news, 10 is weather.
	st := MarkAnchorPlayed(State{}, at(9, 10), sched)
	st = MarkJinglePlayed(st, at(10, 0), sched)

	d, _ := Decide(st, at(10, 0), sched, false)
	if d.Type != BlockWeather {
		t.Fatalf("expected weather at 10:00 after rollover, got %s", d.Type)
	}
}

func TestDecideJinglePrecedenceOnNewsHour(t *testing.T) {
	sched := testSchedule()
	var st State

	d, st := Decide(st, at(18, 0), sched, false)
	if d.Type != BlockJingle {
		t.Fatalf("expected jingle first at 18:00, got %s", d.Type)
	}

	d, _ = Decide(st, at(18, 0), sched, false)
	if d.Type != BlockJingle {
		t.Fatalf("expected jingle again until marked, got %s", d.Type)
	}

	st = MarkJinglePlayed(st, at(18, 0), sched)
	d, _ = Decide(st, at(18, 0), sched, false)
	if d.Type != BlockNews {
		t.Fatalf("expected news after jingle marked, got %s", d.Type)
	}
}

func TestDecidePodcastArgument(t *testing.T) {
	sched := testSchedule()

	d, _ := Decide(State{}, at(22, 15), sched, false)
	if d.Type != BlockPodcast || d.Argument != "4.mp4" {
		t.Fatalf("unexpected decision at 22:15: %+v", d)
	}
}

func TestDecideTablePriority(t *testing.T) {
	cfg := config.Schedule{
		NewsHours:    []int{7},
		WeatherHours: []int{7, 8},
		PodcastHours: []int{7, 8, 9},
		PodcastFiles: map[int]string{7: "a.mp3", 8: "b.mp3", 9: "c.mp3"},
	}
	sched := NewSchedule(cfg, time.UTC)

	tests := []struct {
		hour int
		want BlockType
	}{
		{7, BlockNews},
		{8, BlockWeather},
		{9, BlockPodcast},
		{6, BlockMusic},
	}
	for _, tt := range tests {
		d, _ := Decide(State{}, at(tt.hour, 30), sched, false)
		if d.Type != tt.want {
			t.Fatalf("hour %d: expected %s, got %s", tt.hour, tt.want, d.Type)
		}
	}
}

func TestDecideOverrideAlwaysMusic(t *testing.T) {
	sched := testSchedule()
	states := []State{
		{},
		{LastJingleHour: state.Hour(3)},
		{LastAnchorHour: state.Hour(18)},
		{LastJingleHour: state.Hour(18), LastAnchorHour: state.Hour(18)},
	}

	for _, st := range states {
		for hour := 0; hour < 24; hour++ {
			for minute := 0; minute < 60; minute++ {
				d, _ := Decide(st, at(hour, minute), sched, true)
				if d.Type != BlockMusic {
					t.Fatalf("override: %02d:%02d returned %s", hour, minute, d.Type)
				}
			}
		}
	}
}

func TestDecideUsesStationTimezone(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	sched := NewSchedule(config.DefaultSchedule(), loc)

	// 06:30 UTC is 09:30 in the station zone, a news hour.
	d, _ := Decide(State{}, time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC), sched, false)
	if d.Type != BlockNews {
		t.Fatalf("expected news in station timezone, got %s", d.Type)
	}

	st := MarkAnchorPlayed(State{}, time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC), sched)
	if *st.LastAnchorHour != 9 {
		t.Fatalf("expected anchor hour 9, got %d", *st.LastAnchorHour)
	}
}

func TestDecideDoesNotMutateInput(t *testing.T) {
	sched := testSchedule()
	st := State{LastAnchorHour: state.Hour(9)}

	_, next := Decide(st, at(11, 30), sched, false)
	if st.LastAnchorHour == nil || *st.LastAnchorHour != 9 {
		t.Fatal("input state was modified")
	}
	if next.LastAnchorHour != nil {
		t.Fatal("expected returned state to clear stale anchor hour")
	}
}

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

type failingStore struct{ saves int }

func (f *failingStore) Load(context.Context) (State, error) { return State{}, nil }
func (f *failingStore) Save(context.Context, State) error {
	f.saves++
	return errors.New("store down")
}

func TestControllerPersistsMarks(t *testing.T) {
	clock := &fakeClock{now: at(18, 0)}
	store := state.NewMemoryStore()
	ctrl := NewController(testSchedule(), false, clock, store, nil, zerolog.Nop())
	ctx := context.Background()

	if d := ctrl.Decide(ctx); d.Type != BlockJingle {
		t.Fatalf("expected jingle, got %s", d.Type)
	}
	ctrl.MarkJinglePlayed(ctx)

	clock.Set(at(18, 2))
	if d := ctrl.Decide(ctx); d.Type != BlockNews {
		t.Fatalf("expected news, got %s", d.Type)
	}
	ctrl.MarkAnchorPlayed(ctx)

	saved, _ := store.Load(ctx)
	if saved.LastJingleHour == nil || *saved.LastJingleHour != 18 || saved.LastAnchorHour == nil || *saved.LastAnchorHour != 18 {
		t.Fatalf("unexpected persisted state: %+v", saved)
	}

	// A fresh controller restored from the same store keeps suppressing.
	restored := NewController(testSchedule(), false, clock, store, nil, zerolog.Nop())
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if d := restored.Decide(ctx); d.Type != BlockMusic {
		t.Fatalf("expected music after restore, got %s", d.Type)
	}

	clock.Set(at(19, 30))
	restored.Decide(ctx)
	saved, _ = store.Load(ctx)
	if saved.LastAnchorHour != nil {
		t.Fatal("expected rollover to be persisted")
	}
}

func TestControllerSurvivesStoreErrors(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	store := &failingStore{}
	ctrl := NewController(testSchedule(), false, clock, store, nil, zerolog.Nop())
	ctx := context.Background()

	ctrl.MarkJinglePlayed(ctx)
	if d := ctrl.Decide(ctx); d.Type != BlockNews {
		t.Fatalf("expected news after jingle despite store errors, got %s", d.Type)
	}
	if store.saves == 0 {
		t.Fatal("expected save attempts")
	}
}

func TestSimulateDay(t *testing.T) {
	slots := SimulateDay(at(12, 0), testSchedule(), false)

	var jingles, anchors int
	for _, s := range slots {
		switch {
		case s.Decision.Type == BlockJingle:
			jingles++
		case s.Decision.Type.IsAnchor():
			anchors++
		}
	}
	if jingles != 24 {
		t.Fatalf("expected 24 jingles, got %d", jingles)
	}
	if anchors != len(testSchedule().AnchorHours()) {
		t.Fatalf("expected %d anchors, got %d", len(testSchedule().AnchorHours()), anchors)
	}
	if slots[0].Decision.Type != BlockJingle || !slots[0].At.Equal(at(0, 0)) {
		t.Fatalf("unexpected first slot: %+v", slots[0])
	}
}

func TestControllerMarkAnchorPlayedAtUsesStartHour(t *testing.T) {
	clock := &fakeClock{now: at(19, 1)}
	ctrl := NewController(testSchedule(), false, clock, nil, nil, zerolog.Nop())

	ctrl.MarkAnchorPlayedAt(context.Background(), at(18, 58))

	st := ctrl.State()
	if st.LastAnchorHour == nil || *st.LastAnchorHour != 18 {
		t.Fatalf("expected anchor hour 18, got %v", st.LastAnchorHour)
	}
	ctrl.MarkJinglePlayed(context.Background())
	if d := ctrl.Decide(context.Background()); d.Type != BlockPodcast {
		t.Fatalf("expected the 19:00 podcast to stay available, got %s", d.Type)
	}
}
