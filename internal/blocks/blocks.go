/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package blocks implements the block runners: each one turns a scheduler
// decision into assets and hands them to the stream pipeline.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/producers"
	"github.com/friendsincode/navo_radio/internal/scheduler"
	"github.com/friendsincode/navo_radio/internal/telemetry"
)

var (
	// ErrAssetUnavailable means the block's audio file is missing.
	ErrAssetUnavailable = errors.New("block asset unavailable")
	// ErrProducer means a content producer failed after retries.
	ErrProducer = errors.New("content producer failed")
	// ErrUnknownBlock is returned for a decision no runner handles.
	ErrUnknownBlock = errors.New("unknown block type")
)

const (
	maxTries        = 3
	recentTrackSpan = 50
)

// Sink is where runners hand finished items.
type Sink interface {
	Deliver(ctx context.Context, item mediaengine.QueueItem) (mediaengine.Delivery, error)
}

// Catalog picks and downloads music tracks.
type Catalog interface {
	Pick(ctx context.Context, recent map[string]bool) (producers.Track, error)
	Download(ctx context.Context, track producers.Track) (string, error)
}

// ScriptWriter writes the spoken text for intros and bulletins.
type ScriptWriter interface {
	DJIntro(ctx context.Context, track producers.Track) (string, error)
	NewsScript(ctx context.Context, headlines string) (string, error)
	WeatherScript(ctx context.Context, report string) (string, error)
}

// NewsSource returns the raw headlines for a bulletin.
type NewsSource interface {
	Headlines(ctx context.Context) (string, error)
}

// WeatherSource returns a one-line weather report.
type WeatherSource interface {
	Report(ctx context.Context) (string, error)
}

// PodcastSource resolves an episode file name to a local path.
type PodcastSource interface {
	Podcast(ctx context.Context, name string) (string, error)
}

// RecentTracks reports recently aired catalog ids.
type RecentTracks interface {
	RecentTrackIDs(ctx context.Context, limit int) (map[string]bool, error)
}

// Stash keeps the last good producer output for reuse when a fetch fails.
type Stash interface {
	Remember(ctx context.Context, key, value string)
	Recall(ctx context.Context, key string) (string, bool)
}

// Deps wires the runners to their collaborators. Recent and Stash are optional.
type Deps struct {
	Sink       Sink
	JinglePath string
	Catalog    Catalog
	Writer     ScriptWriter
	Speaker    producers.Speaker
	News       NewsSource
	Weather    WeatherSource
	Podcasts   PodcastSource
	Recent     RecentTracks
	Stash      Stash

	IntroEnabled bool
	// ClaimWait bounds how long music waits for an in-flight prefetch.
	ClaimWait time.Duration
}

// Result describes what a block put on air.
type Result struct {
	Label    string
	TrackID  string
	Assets   []string
	Delivery mediaengine.DeliveryKind
}

// Runners dispatches decisions to the per-block runners.
type Runners struct {
	deps       Deps
	prefetch   *Slot[preparedTrack]
	heldMu     sync.Mutex
	held       *preparedTrack
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// New creates the runners.
func New(deps Deps, logger zerolog.Logger) *Runners {
	if deps.ClaimWait <= 0 {
		deps.ClaimWait = 20 * time.Second
	}
	return &Runners{
		deps:       deps,
		prefetch:   NewSlot[preparedTrack](),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger.With().Str("component", "blocks").Logger(),
	}
}

// JinglePath is the station jingle file.
func (r *Runners) JinglePath() string {
	return r.deps.JinglePath
}

// Run executes the runner for decision and records metrics and a span.
func (r *Runners) Run(ctx context.Context, decision scheduler.BlockDecision) (Result, error) {
	blockType := string(decision.Type)
	ctx, span := telemetry.StartBlockSpan(ctx, blockType, decision.Argument)
	defer span.End()

	start := time.Now()
	var (
		res Result
		err error
	)
	switch decision.Type {
	case scheduler.BlockJingle:
		res, err = r.Jingle(ctx)
	case scheduler.BlockNews:
		res, err = r.News(ctx)
	case scheduler.BlockWeather:
		res, err = r.Weather(ctx)
	case scheduler.BlockPodcast:
		res, err = r.Podcast(ctx, decision.Argument)
	case scheduler.BlockMusic:
		res, err = r.Music(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBlock, decision.Type)
	}

	telemetry.BlockDuration.WithLabelValues(blockType).Observe(time.Since(start).Seconds())
	telemetry.BlocksRun.WithLabelValues(blockType, resultLabel(err)).Inc()
	telemetry.RecordError(span, err)
	return res, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mediaengine.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, mediaengine.ErrEnqueueTimeout):
		return "queue_full"
	case errors.Is(err, ErrAssetUnavailable):
		return "asset_unavailable"
	case errors.Is(err, ErrProducer):
		return "producer_failure"
	default:
		return "error"
	}
}

// deliver hands item to the sink and waits when it went to a one-shot encoder.
func (r *Runners) deliver(ctx context.Context, item mediaengine.QueueItem) (mediaengine.DeliveryKind, error) {
	d, err := r.deps.Sink.Deliver(ctx, item)
	if err != nil {
		return 0, fmt.Errorf("deliver %s: %w", item.Label, err)
	}
	if err := d.Wait(ctx); err != nil {
		return d.Kind, fmt.Errorf("one-shot encoder for %s: %w", item.Label, err)
	}
	return d.Kind, nil
}

// retry runs fn up to maxTries times with exponential backoff. Permanent
// producer errors stop at once.
func (r *Runners) retry(ctx context.Context, producer string, fn func(context.Context) error) (err error) {
	ctx, span := telemetry.StartProducerSpan(ctx, producer)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), maxTries-1), ctx)
	op := func() error {
		err := fn(ctx)
		if err != nil && producers.Permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		telemetry.ProducerRetries.WithLabelValues(producer).Inc()
		r.logger.Warn().Err(err).Str("producer", producer).Dur("retry_in", wait).Msg("producer call failed, retrying")
	}
	if rerr := backoff.RetryNotify(op, b, notify); rerr != nil {
		return fmt.Errorf("%w: %s: %w", ErrProducer, producer, rerr)
	}
	return nil
}
