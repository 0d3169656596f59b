/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mediaengine turns discrete audio files into one continuous
// broadcast: a bounded queue, a feeder decoding each file to raw PCM and a
// single long-lived encoder pushing to Icecast.
package mediaengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/events"
)

var (
	// ErrNotConfigured means the broadcast credentials are missing.
	ErrNotConfigured = errors.New("broadcast endpoint not configured")
	// ErrQueueFull is returned by non-blocking enqueue on a full queue.
	ErrQueueFull = errors.New("stream queue full")
	// ErrEnqueueTimeout is returned when a blocking enqueue waited too long.
	ErrEnqueueTimeout = errors.New("timed out waiting for queue space")
	// ErrInvalidItem is returned for items without a main asset.
	ErrInvalidItem = errors.New("queue item has no main asset")
	// ErrAssetUnavailable marks a missing or undecodable asset.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrPipelineBroken means the encoder input pipe failed.
	ErrPipelineBroken = errors.New("encoder pipe broken")
	// ErrRestartThrottled means too many generations were spawned recently.
	ErrRestartThrottled = errors.New("pipeline restart throttled")
	// ErrEncoderBusy means another encoder already holds the endpoint.
	ErrEncoderBusy = errors.New("encoder already running")
)

const defaultEnqueueTimeout = 30 * time.Second

// Options configures a Pipeline.
type Options struct {
	Encoder        EncoderConfig
	QueueCapacity  int
	EnqueueTimeout time.Duration

	// Launcher and Decoder default to ffmpeg via os/exec.
	Launcher Launcher
	Decoder  Decoder

	Bus *events.Bus
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	State       ProcessState `json:"state"`
	Alive       bool         `json:"alive"`
	QueueLength int          `json:"queue_length"`
	QueueCap    int          `json:"queue_capacity"`
	Generations int          `json:"generations"`
	ItemsFed    int64        `json:"items_fed"`
	AssetsSkip  int64        `json:"assets_skipped"`
	Fallbacks   int64        `json:"fallbacks"`
	Level       float64      `json:"level"`
}

// Pipeline is the broadcast core.
type Pipeline struct {
	opts   Options
	logger zerolog.Logger

	queue *Queue
	meter *LevelMeter
	sup   *Supervisor

	// encoderSlot holds a token while any encoder is live so a fallback
	// process never overlaps a generation on the same mount.
	encoderSlot chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nowPlaying atomic.Pointer[QueueItem]
	itemsFed   atomic.Int64
	skipped    atomic.Int64
	fallbacks  atomic.Int64
}

// NewPipeline constructs a stopped pipeline.
func NewPipeline(opts Options, logger zerolog.Logger) *Pipeline {
	opts.Encoder = opts.Encoder.withDefaults()
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = defaultEnqueueTimeout
	}
	if opts.Launcher == nil {
		opts.Launcher = ExecLauncher{Bin: opts.Encoder.FFmpegBin, Logger: logger.With().Str("component", "encoder").Logger()}
	}
	if opts.Decoder == nil {
		opts.Decoder = FFmpegDecoder{Bin: opts.Encoder.FFmpegBin}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		opts:        opts,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		queue:       NewQueue(opts.QueueCapacity),
		meter:       NewLevelMeter(),
		encoderSlot: make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	p.sup = newSupervisor(p.spawn, p.publishState, logger)
	return p
}

// Start makes sure a feeder and encoder are running. It is idempotent and
// safe for concurrent callers.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.opts.Encoder.Configured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ctx.Err() != nil {
		return errors.New("pipeline shut down")
	}
	return p.sup.EnsureRunning()
}

// Enqueue adds an item. Blocking enqueues wait up to the configured timeout
// for space; non-blocking ones fail at once with ErrQueueFull.
func (p *Pipeline) Enqueue(ctx context.Context, item QueueItem, blocking bool) error {
	if item.Main == "" {
		return ErrInvalidItem
	}
	if err := p.queue.Put(ctx, item, blocking, p.opts.EnqueueTimeout); err != nil {
		return err
	}
	p.logger.Debug().
		Str("item", item.Label).
		Bool("intro", item.Intro != "").
		Bool("blocking", blocking).
		Int("queue_length", p.queue.Len()).
		Msg("enqueued")
	return nil
}

func (p *Pipeline) spawn() (*generation, error) {
	select {
	case p.encoderSlot <- struct{}{}:
	default:
		return nil, ErrEncoderBusy
	}

	genCtx, cancel := context.WithCancel(p.ctx)
	proc, err := p.opts.Launcher.Launch(genCtx, p.opts.Encoder.EncoderArgs())
	if err != nil {
		cancel()
		<-p.encoderSlot
		return nil, fmt.Errorf("launch encoder: %w", err)
	}

	gen := &generation{
		id:     uuid.NewString(),
		proc:   proc,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	f := p.newFeeder(gen.id)

	p.logger.Info().Str("generation", gen.id).Str("endpoint", p.opts.Encoder.RedactedURL()).Msg("encoder launched")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		f.run(genCtx, proc)
		p.nowPlaying.Store(nil)
		cancel()
		<-p.encoderSlot
		close(gen.done)
	}()
	return gen, nil
}

func (p *Pipeline) newFeeder(genID string) *feeder {
	// current is only touched from the feeder goroutine.
	var current *QueueItem
	return &feeder{
		queue:   p.queue,
		decoder: p.opts.Decoder,
		meter:   p.meter,
		logger:  p.logger.With().Str("component", "feeder").Str("generation", genID).Logger(),
		onItem: func(item QueueItem) {
			current = &item
			p.nowPlaying.Store(current)
			p.publish(events.EventNowPlaying, events.Payload{"label": item.Label, "main": item.Main, "intro": item.Intro})
		},
		onSkip: func(asset string, err error) {
			p.skipped.Add(1)
			p.publish(events.EventAssetSkipped, events.Payload{"asset": asset, "error": err.Error()})
		},
		onFed: func(QueueItem) {
			// Leave a newer item from another feeder in place.
			p.nowPlaying.CompareAndSwap(current, nil)
			p.itemsFed.Add(1)
		},
	}
}

func (p *Pipeline) publishState(state ProcessState) {
	p.publish(events.EventPipelineState, events.Payload{"state": string(state)})
}

func (p *Pipeline) publish(t events.EventType, payload events.Payload) {
	if p.opts.Bus != nil {
		p.opts.Bus.Publish(t, payload)
	}
}

// State returns the pipeline lifecycle state.
func (p *Pipeline) State() ProcessState {
	return p.sup.State()
}

// Alive reports whether a feeder is running.
func (p *Pipeline) Alive() bool {
	return p.sup.Alive()
}

// QueueLen returns the number of items waiting.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

// Level returns the current output level in [0, 1].
func (p *Pipeline) Level() float64 {
	return p.meter.Level()
}

// NowPlaying returns the item being fed, if any.
func (p *Pipeline) NowPlaying() (QueueItem, bool) {
	item := p.nowPlaying.Load()
	if item == nil {
		return QueueItem{}, false
	}
	return *item, true
}

// Configured reports whether broadcast credentials are present.
func (p *Pipeline) Configured() bool {
	return p.opts.Encoder.Configured()
}

// Stats returns a snapshot of the pipeline.
func (p *Pipeline) Stats() Stats {
	return Stats{
		State:       p.sup.State(),
		Alive:       p.sup.Alive(),
		QueueLength: p.queue.Len(),
		QueueCap:    p.queue.Cap(),
		Generations: p.sup.Generations(),
		ItemsFed:    p.itemsFed.Load(),
		AssetsSkip:  p.skipped.Load(),
		Fallbacks:   p.fallbacks.Load(),
		Level:       p.meter.Level(),
	}
}

// Stop tears down the live generation and any fallback process. Queued
// items are left in the queue.
func (p *Pipeline) Stop() {
	p.cancel()
	p.sup.Stop()
	p.wg.Wait()
	p.logger.Info().Msg("pipeline stopped")
}
