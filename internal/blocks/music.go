/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package blocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/producers"
)

// preparedTrack is a downloaded track with its optional spoken intro.
type preparedTrack struct {
	track producers.Track
	item  mediaengine.QueueItem
}

// Music plays one catalog track, preceded by a DJ intro when available,
// then starts preparing the next one in the background.
//
// A track that times out waiting for queue space is held and offered again
// on the next call; the returned error wraps mediaengine.ErrEnqueueTimeout.
func (r *Runners) Music(ctx context.Context) (Result, error) {
	prepared, err := r.nextTrack(ctx)
	if err != nil {
		return Result{}, err
	}

	kind, err := r.deliver(ctx, prepared.item)
	if errors.Is(err, mediaengine.ErrEnqueueTimeout) {
		r.hold(prepared)
		r.logger.Debug().Str("track_id", prepared.track.ID).Msg("queue full, holding track")
		return Result{Label: prepared.item.Label, TrackID: prepared.track.ID}, err
	}
	if err != nil {
		return Result{}, err
	}

	r.logger.Info().
		Str("track_id", prepared.track.ID).
		Str("artist", prepared.track.ArtistName).
		Str("title", prepared.track.Name).
		Bool("intro", prepared.item.Intro != "").
		Str("delivery", kind.String()).
		Msg("track queued")

	r.prefetch.Prefetch(ctx, r.prepareTrack)

	return Result{
		Label:    prepared.item.Label,
		TrackID:  prepared.track.ID,
		Assets:   prepared.item.Assets(),
		Delivery: kind,
	}, nil
}

// nextTrack returns the held track, the prefetched one, or a fresh one.
func (r *Runners) nextTrack(ctx context.Context) (preparedTrack, error) {
	r.heldMu.Lock()
	held := r.held
	r.held = nil
	r.heldMu.Unlock()
	if held != nil {
		r.logger.Debug().Str("track_id", held.track.ID).Msg("retrying held track")
		return *held, nil
	}

	prepared, ok, err := r.prefetch.Claim(ctx, r.deps.ClaimWait)
	if ok && err == nil {
		r.logger.Debug().Str("track_id", prepared.track.ID).Msg("using prefetched track")
		return prepared, nil
	}
	if ok {
		r.logger.Warn().Err(err).Msg("prefetch failed, preparing synchronously")
	}
	return r.prepareTrack(ctx)
}

func (r *Runners) hold(track preparedTrack) {
	r.heldMu.Lock()
	r.held = &track
	r.heldMu.Unlock()
}

func (r *Runners) prepareTrack(ctx context.Context) (preparedTrack, error) {
	recent := r.recentTracks(ctx)

	var track producers.Track
	if err := r.retry(ctx, "catalog", func(ctx context.Context) error {
		var err error
		track, err = r.deps.Catalog.Pick(ctx, recent)
		return err
	}); err != nil {
		return preparedTrack{}, err
	}

	var trackPath string
	if err := r.retry(ctx, "download", func(ctx context.Context) error {
		var err error
		trackPath, err = r.deps.Catalog.Download(ctx, track)
		return err
	}); err != nil {
		return preparedTrack{}, err
	}

	item := mediaengine.QueueItem{
		Main:  trackPath,
		Label: fmt.Sprintf("%s - %s", track.ArtistName, track.Name),
	}
	if r.deps.IntroEnabled {
		item.Intro = r.introFor(ctx, track)
	}
	return preparedTrack{track: track, item: item}, nil
}

// introFor renders the DJ intro. Failures drop the intro, not the track.
func (r *Runners) introFor(ctx context.Context, track producers.Track) string {
	text := producers.FallbackIntro(track)
	if r.deps.Writer != nil {
		var generated string
		err := r.retry(ctx, "script", func(ctx context.Context) error {
			var err error
			generated, err = r.deps.Writer.DJIntro(ctx, track)
			return err
		})
		if err != nil {
			r.logger.Debug().Err(err).Str("track_id", track.ID).Msg("using fallback intro")
		} else {
			text = generated
		}
	}

	var path string
	if err := r.retry(ctx, "tts", func(ctx context.Context) error {
		var err error
		path, err = r.deps.Speaker.Speak(ctx, "intro", text)
		return err
	}); err != nil {
		r.logger.Warn().Err(err).Str("track_id", track.ID).Msg("intro speech failed, playing track without intro")
		return ""
	}
	return path
}

func (r *Runners) recentTracks(ctx context.Context) map[string]bool {
	if r.deps.Recent == nil {
		return nil
	}
	recent, err := r.deps.Recent.RecentTrackIDs(ctx, recentTrackSpan)
	if err != nil {
		r.logger.Warn().Err(err).Msg("recently played lookup failed")
		return nil
	}
	return recent
}
