/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout runs the station: it asks the scheduler what plays now,
// runs the matching block and keeps the stream fed between blocks.
package playout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/blocks"
	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/media"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/scheduler"
)

// Runner executes one block.
type Runner interface {
	Run(ctx context.Context, decision scheduler.BlockDecision) (blocks.Result, error)
	JinglePath() string
}

// Stream is the part of the pipeline the director drives directly.
type Stream interface {
	Start(ctx context.Context) error
	Enqueue(ctx context.Context, item mediaengine.QueueItem, blocking bool) error
	QueueLen() int
	Alive() bool
}

// Filler provides the cached silent asset.
type Filler interface {
	EnsureFillerAsset(ctx context.Context, seconds int) (string, error)
}

// Recorder stores finished blocks in the play log.
type Recorder interface {
	Record(ctx context.Context, entry models.PlayHistory) error
}

// Options tunes the director's pacing.
type Options struct {
	FillerSeconds        int
	KeepAliveInterval    time.Duration
	PostBlockPause       time.Duration
	MusicFailurePause    time.Duration
	NotConfiguredBackoff time.Duration
	TestStreamItems      int
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		FillerSeconds:        8,
		KeepAliveInterval:    8 * time.Second,
		PostBlockPause:       5 * time.Second,
		MusicFailurePause:    30 * time.Second,
		NotConfiguredBackoff: 30 * time.Second,
		TestStreamItems:      15,
	}
}

// Status is a snapshot of the director for the status API.
type Status struct {
	RunID      string                  `json:"run_id,omitempty"`
	Decision   scheduler.BlockDecision `json:"decision"`
	StartedAt  time.Time               `json:"started_at"`
	LastResult string                  `json:"last_result,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	LastLabel  string                  `json:"last_label,omitempty"`
	Delivery   string                  `json:"delivery,omitempty"`
	TestStream bool                    `json:"test_stream"`
}

// Director drives schedule execution and emits block events.
type Director struct {
	ctrl     *scheduler.Controller
	runner   Runner
	stream   Stream
	filler   Filler
	recorder Recorder
	bus      *events.Bus
	opts     Options
	logger   zerolog.Logger

	mu         sync.Mutex
	status     Status
	testActive bool
}

// NewDirector creates a playout director. recorder and bus may be nil.
func NewDirector(ctrl *scheduler.Controller, runner Runner, stream Stream, filler Filler, recorder Recorder, bus *events.Bus, opts Options, logger zerolog.Logger) *Director {
	return &Director{
		ctrl:     ctrl,
		runner:   runner,
		stream:   stream,
		filler:   filler,
		recorder: recorder,
		bus:      bus,
		opts:     opts,
		logger:   logger.With().Str("component", "director").Logger(),
	}
}

// Run executes the director loop until context cancellation.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Bool("override_music", d.ctrl.OverrideMusic()).Msg("playout director started")

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info().Msg("playout director stopped")
			return err
		}

		decision := d.ctrl.Decide(ctx)
		startedAt := d.ctrl.Now()
		d.logger.Info().
			Str("block", string(decision.Type)).
			Str("argument", decision.Argument).
			Str("local_time", startedAt.Format("15:04:05")).
			Msg("block decided")

		d.warmup(ctx, decision)
		err := d.runBlock(ctx, decision, startedAt)

		if errors.Is(err, mediaengine.ErrNotConfigured) {
			d.logger.Error().Err(err).Dur("backoff", d.opts.NotConfiguredBackoff).Msg("broadcast endpoint not configured")
			_ = sleepCtx(ctx, d.opts.NotConfiguredBackoff)
			continue
		}

		if decision.Type != scheduler.BlockMusic {
			// Cover the pause before the next decision.
			d.enqueueFiller(ctx, false)
			_ = sleepCtx(ctx, d.opts.PostBlockPause)
		}
	}
}

// runBlock plays decision and applies the mark-played rules for its type.
func (d *Director) runBlock(ctx context.Context, decision scheduler.BlockDecision, startedAt time.Time) error {
	switch {
	case decision.Type == scheduler.BlockJingle:
		err := d.play(ctx, decision)
		// Marked even on failure so a missing jingle can't loop.
		d.ctrl.MarkJinglePlayed(ctx)
		return err

	case decision.Type.IsAnchor():
		err := d.play(ctx, decision)
		// Marked even on failure so a broken producer isn't hammered for
		// the rest of the hour.
		d.ctrl.MarkAnchorPlayedAt(ctx, startedAt)
		if err == nil {
			d.keepAlive(ctx, startedAt)
		}
		return err

	default:
		return d.musicLoop(ctx, decision)
	}
}

// musicLoop plays tracks for as long as the scheduler keeps answering music.
func (d *Director) musicLoop(ctx context.Context, decision scheduler.BlockDecision) error {
	for {
		err := d.play(ctx, decision)
		if errors.Is(err, mediaengine.ErrNotConfigured) {
			return err
		}
		if err != nil && !errors.Is(err, mediaengine.ErrEnqueueTimeout) {
			d.logger.Warn().Err(err).Dur("pause", d.opts.MusicFailurePause).Msg("track failed")
			if sleepCtx(ctx, d.opts.MusicFailurePause) != nil {
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		next := d.ctrl.Decide(ctx)
		if next.Type != scheduler.BlockMusic {
			return nil
		}
		decision = next
	}
}

// keepAlive waits while the anchor is still queued, re-arming the pipeline
// every interval, and gives up at the end of the hour the block started in.
func (d *Director) keepAlive(ctx context.Context, startedAt time.Time) {
	hourEnd := time.Date(startedAt.Year(), startedAt.Month(), startedAt.Day(), startedAt.Hour(), 0, 0, 0, startedAt.Location()).Add(time.Hour)

	for d.stream.QueueLen() > 0 && d.ctrl.Now().Before(hourEnd) {
		if sleepCtx(ctx, d.opts.KeepAliveInterval) != nil {
			return
		}
		if err := d.stream.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn().Err(err).Msg("keep-alive restart failed")
		}
	}
}

// warmup connects the encoder before slow blocks so listeners hear the
// station while content is prepared.
func (d *Director) warmup(ctx context.Context, decision scheduler.BlockDecision) {
	switch decision.Type {
	case scheduler.BlockJingle, scheduler.BlockPodcast:
		return
	}

	cold := !d.stream.Alive()
	if err := d.stream.Start(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("warmup skipped")
		return
	}

	if cold {
		if jingle := d.runner.JinglePath(); media.Exists(jingle) {
			if err := d.stream.Enqueue(ctx, mediaengine.QueueItem{Main: jingle, Label: "jingle"}, true); err != nil {
				d.logger.Warn().Err(err).Msg("warmup jingle not queued")
			}
		}
	}

	switch decision.Type {
	case scheduler.BlockNews, scheduler.BlockWeather:
		// Covers fetch, script and speech generation.
		d.enqueueFiller(ctx, false)
		d.enqueueFiller(ctx, false)
	case scheduler.BlockMusic:
		if cold {
			d.enqueueFiller(ctx, true)
		}
	}
}

// play runs one block with events, status and history around it.
func (d *Director) play(ctx context.Context, decision scheduler.BlockDecision) error {
	runID := uuid.NewString()
	started := time.Now()

	d.mu.Lock()
	d.status.RunID = runID
	d.status.Decision = decision
	d.status.StartedAt = started
	d.mu.Unlock()

	d.publish(events.EventBlockStart, events.Payload{
		"run_id":   runID,
		"block":    string(decision.Type),
		"argument": decision.Argument,
	})

	res, err := d.runner.Run(ctx, decision)
	ended := time.Now()

	// A full queue during music means the air is covered; the track is held
	// by the runner and retried.
	deferred := decision.Type == scheduler.BlockMusic && errors.Is(err, mediaengine.ErrEnqueueTimeout)

	result := models.ResultOK
	errText := ""
	switch {
	case deferred:
		result = models.ResultDeferred
		d.logger.Debug().Str("run_id", runID).Str("label", res.Label).Msg("queue full, track deferred")
	case err != nil:
		result = models.ResultError
		errText = err.Error()
		d.logger.Warn().Err(err).Str("run_id", runID).Str("block", string(decision.Type)).Msg("block failed")
	default:
		d.logger.Info().Str("run_id", runID).Str("block", string(decision.Type)).Str("label", res.Label).Msg("block done")
	}

	d.mu.Lock()
	d.status.LastResult = result
	d.status.LastError = errText
	d.status.LastLabel = res.Label
	d.status.Delivery = ""
	if res.Delivery != 0 {
		d.status.Delivery = res.Delivery.String()
	}
	d.mu.Unlock()

	d.publish(events.EventBlockEnd, events.Payload{
		"run_id":      runID,
		"block":       string(decision.Type),
		"result":      result,
		"error":       errText,
		"label":       res.Label,
		"duration_ms": ended.Sub(started).Milliseconds(),
	})

	if !deferred {
		d.record(ctx, runID, decision, res, result, errText, started, ended)
	}
	return err
}

func (d *Director) record(ctx context.Context, runID string, decision scheduler.BlockDecision, res blocks.Result, result, errText string, started, ended time.Time) {
	if d.recorder == nil || ctx.Err() != nil {
		return
	}
	entry := models.PlayHistory{
		RunID:     runID,
		BlockType: string(decision.Type),
		Argument:  decision.Argument,
		Label:     res.Label,
		TrackID:   res.TrackID,
		Result:    result,
		Error:     errText,
		StartedAt: started.UTC(),
		EndedAt:   ended.UTC(),
	}
	if res.Delivery != 0 {
		entry.Delivery = res.Delivery.String()
	}
	switch len(res.Assets) {
	case 1:
		entry.Main = res.Assets[0]
	case 2:
		entry.Intro, entry.Main = res.Assets[0], res.Assets[1]
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		d.logger.Warn().Err(err).Str("run_id", runID).Msg("play history not recorded")
	}
}

// enqueueFiller queues the silent asset; failures are logged only.
func (d *Director) enqueueFiller(ctx context.Context, blocking bool) {
	path, err := d.filler.EnsureFillerAsset(ctx, d.opts.FillerSeconds)
	if err != nil {
		d.logger.Warn().Err(err).Msg("filler unavailable")
		return
	}
	if err := d.stream.Start(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("filler skipped, stream not running")
		return
	}
	err = d.stream.Enqueue(ctx, mediaengine.QueueItem{Main: path, Label: "filler"}, blocking)
	switch {
	case err == nil:
	case errors.Is(err, mediaengine.ErrQueueFull):
		d.logger.Debug().Msg("queue full, filler dropped")
	default:
		d.logger.Warn().Err(err).Msg("filler not queued")
	}
}

// Status returns the current block and last outcome.
func (d *Director) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status
	st.TestStream = d.testActive
	return st
}

func (d *Director) publish(t events.EventType, payload events.Payload) {
	if d.bus != nil {
		d.bus.Publish(t, payload)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
