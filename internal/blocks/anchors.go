/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package blocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/navo_radio/internal/media"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/producers"
)

// Jingle plays the station jingle.
func (r *Runners) Jingle(ctx context.Context) (Result, error) {
	path := r.deps.JinglePath
	if !media.Exists(path) {
		return Result{}, fmt.Errorf("%w: jingle %s", ErrAssetUnavailable, path)
	}
	return r.single(ctx, path, "jingle")
}

// Podcast plays the episode named by the decision argument.
func (r *Runners) Podcast(ctx context.Context, name string) (Result, error) {
	if r.deps.Podcasts == nil {
		return Result{}, fmt.Errorf("%w: no podcast source", ErrAssetUnavailable)
	}
	path, err := r.deps.Podcasts.Podcast(ctx, name)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: podcast %q: %w", ErrAssetUnavailable, name, err)
		}
		return Result{}, fmt.Errorf("%w: podcast %q: %w", ErrProducer, name, err)
	}
	return r.single(ctx, path, "podcast "+name)
}

// News reads a bulletin built from the feed headlines.
func (r *Runners) News(ctx context.Context) (Result, error) {
	var headlines string
	if r.deps.News != nil {
		if err := r.retry(ctx, "news", func(ctx context.Context) error {
			var err error
			headlines, err = r.deps.News.Headlines(ctx)
			return err
		}); err != nil {
			r.logger.Warn().Err(err).Msg("headlines unavailable")
		}
		headlines = r.lastGood(ctx, "news:headlines", headlines)
	}

	script := producers.FallbackNews(headlines)
	if r.deps.Writer != nil && headlines != "" {
		r.scripted(ctx, &script, func(ctx context.Context) (string, error) {
			return r.deps.Writer.NewsScript(ctx, headlines)
		})
	}
	return r.spoken(ctx, "news", script)
}

// Weather reads the current forecast.
func (r *Runners) Weather(ctx context.Context) (Result, error) {
	var report string
	if r.deps.Weather != nil {
		if err := r.retry(ctx, "weather", func(ctx context.Context) error {
			var err error
			report, err = r.deps.Weather.Report(ctx)
			return err
		}); err != nil {
			r.logger.Warn().Err(err).Msg("weather report unavailable")
		}
		report = r.lastGood(ctx, "weather:report", report)
	}

	script := producers.FallbackWeather(report)
	if r.deps.Writer != nil && report != "" {
		r.scripted(ctx, &script, func(ctx context.Context) (string, error) {
			return r.deps.Writer.WeatherScript(ctx, report)
		})
	}
	return r.spoken(ctx, "weather", script)
}

// lastGood stashes a fresh value, or recalls the stashed one when fresh is
// empty.
func (r *Runners) lastGood(ctx context.Context, key, fresh string) string {
	if r.deps.Stash == nil {
		return fresh
	}
	if fresh != "" {
		r.deps.Stash.Remember(ctx, key, fresh)
		return fresh
	}
	if stale, ok := r.deps.Stash.Recall(ctx, key); ok {
		r.logger.Info().Str("key", key).Msg("using last good producer result")
		return stale
	}
	return ""
}

// scripted replaces *script with a generated one when the writer succeeds.
func (r *Runners) scripted(ctx context.Context, script *string, write func(context.Context) (string, error)) {
	var generated string
	if err := r.retry(ctx, "script", func(ctx context.Context) error {
		var err error
		generated, err = write(ctx)
		return err
	}); err != nil {
		r.logger.Debug().Err(err).Msg("using fallback script")
		return
	}
	*script = generated
}

// spoken renders text to speech and plays it.
func (r *Runners) spoken(ctx context.Context, kind, text string) (Result, error) {
	var path string
	if err := r.retry(ctx, "tts", func(ctx context.Context) error {
		var err error
		path, err = r.deps.Speaker.Speak(ctx, kind, text)
		return err
	}); err != nil {
		return Result{}, err
	}
	return r.single(ctx, path, kind)
}

func (r *Runners) single(ctx context.Context, path, label string) (Result, error) {
	item := mediaengine.QueueItem{Main: path, Label: label}
	kind, err := r.deliver(ctx, item)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info().Str("label", label).Str("path", path).Str("delivery", kind.String()).Msg("block queued")
	return Result{Label: label, Assets: item.Assets(), Delivery: kind}, nil
}
