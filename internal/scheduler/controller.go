/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/scheduler/state"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Controller owns the single scheduler state value for the process.
type Controller struct {
	schedule Schedule
	clock    Clock
	store    state.Store
	bus      *events.Bus
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	overrideMusic bool
}

// NewController constructs a controller. store may be nil for an
// unpersisted controller; bus may be nil.
func NewController(schedule Schedule, overrideMusic bool, clock Clock, store state.Store, bus *events.Bus, logger zerolog.Logger) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if store == nil {
		store = state.NewMemoryStore()
	}
	return &Controller{
		schedule:      schedule,
		clock:         clock,
		store:         store,
		bus:           bus,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		overrideMusic: overrideMusic,
	}
}

// Restore loads persisted flags.
func (c *Controller) Restore(ctx context.Context) error {
	st, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.logger.Debug().Interface("state", st).Msg("scheduler state restored")
	return nil
}

// Decide answers what plays now and keeps the normalised state.
func (c *Controller) Decide(ctx context.Context) BlockDecision {
	c.mu.Lock()
	decision, next := Decide(c.state, c.clock.Now(), c.schedule, c.overrideMusic)
	changed := !next.Equal(c.state)
	c.state = next
	c.mu.Unlock()

	if changed {
		c.save(ctx, next)
	}
	return decision
}

// MarkJinglePlayed records the jingle for the current hour.
func (c *Controller) MarkJinglePlayed(ctx context.Context) {
	c.mark(ctx, "jingle", c.clock.Now(), MarkJinglePlayed)
}

// MarkAnchorPlayed records an anchor block for the current hour.
func (c *Controller) MarkAnchorPlayed(ctx context.Context) {
	c.mark(ctx, "anchor", c.clock.Now(), MarkAnchorPlayed)
}

// MarkAnchorPlayedAt records an anchor block for the hour of startedAt, so a
// block that runs past the top of the hour still counts for its own hour.
func (c *Controller) MarkAnchorPlayedAt(ctx context.Context, startedAt time.Time) {
	c.mark(ctx, "anchor", startedAt, MarkAnchorPlayed)
}

func (c *Controller) mark(ctx context.Context, field string, now time.Time, fn func(State, time.Time, Schedule) State) {
	c.mu.Lock()
	next := fn(c.state, now, c.schedule)
	c.state = next
	c.mu.Unlock()

	hour := c.schedule.local(now).Hour()
	c.logger.Info().Str("field", field).Int("hour", hour).Msg("marked played")
	if c.bus != nil {
		c.bus.Publish(events.EventSchedulerMark, events.Payload{"field": field, "hour": hour})
	}
	c.save(ctx, next)
}

// save errors are logged only; the in-memory state stays authoritative.
func (c *Controller) save(ctx context.Context, st State) {
	if err := c.store.Save(ctx, st); err != nil {
		c.logger.Warn().Err(err).Msg("persist scheduler state")
	}
}

// State returns a copy of the current flags.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// OverrideMusic reports whether always-music mode is on.
func (c *Controller) OverrideMusic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overrideMusic
}

// SetOverrideMusic toggles always-music mode.
func (c *Controller) SetOverrideMusic(on bool) {
	c.mu.Lock()
	c.overrideMusic = on
	c.mu.Unlock()
	c.logger.Info().Bool("override_music", on).Msg("always-music mode changed")
}

// Schedule returns the hour tables.
func (c *Controller) Schedule() Schedule {
	return c.schedule
}

// Now returns the controller's clock reading in the station timezone.
func (c *Controller) Now() time.Time {
	return c.schedule.local(c.clock.Now())
}
