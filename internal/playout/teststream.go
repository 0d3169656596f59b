/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
)

// ErrTestStreamRunning is returned when a test stream is already in progress.
var ErrTestStreamRunning = errors.New("test stream already running")

// TestStream starts the pipeline and queues a run of filler items so an
// operator can check the broadcast endpoint end to end.
func (d *Director) TestStream(ctx context.Context) (int, error) {
	if !d.claimTestStream() {
		return 0, ErrTestStreamRunning
	}
	return d.runTestStream(ctx)
}

// StartTestStream runs a test stream in the background. It reports false
// when one is already running.
func (d *Director) StartTestStream(ctx context.Context) bool {
	if !d.claimTestStream() {
		return false
	}

	go func() {
		if _, err := d.runTestStream(ctx); err != nil {
			d.logger.Error().Err(err).Msg("test stream failed")
		}
	}()
	return true
}

func (d *Director) claimTestStream() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.testActive {
		return false
	}
	d.testActive = true
	return true
}

// runTestStream expects the caller to hold the test stream flag and
// releases it when done.
func (d *Director) runTestStream(ctx context.Context) (int, error) {
	defer func() {
		d.mu.Lock()
		d.testActive = false
		d.mu.Unlock()
	}()

	path, err := d.filler.EnsureFillerAsset(ctx, d.opts.FillerSeconds)
	if err != nil {
		return 0, fmt.Errorf("test stream filler: %w", err)
	}
	if err := d.stream.Start(ctx); err != nil {
		return 0, fmt.Errorf("test stream start: %w", err)
	}

	d.publish(events.EventTestStream, events.Payload{"status": "started", "items": d.opts.TestStreamItems})
	queued := 0
	for i := 0; i < d.opts.TestStreamItems; i++ {
		item := mediaengine.QueueItem{Main: path, Label: fmt.Sprintf("test %d/%d", i+1, d.opts.TestStreamItems)}
		if err := d.stream.Enqueue(ctx, item, true); err != nil {
			d.publish(events.EventTestStream, events.Payload{"status": "failed", "queued": queued, "error": err.Error()})
			return queued, fmt.Errorf("test stream enqueue: %w", err)
		}
		queued++
	}

	d.logger.Info().Int("items", queued).Msg("test stream queued")
	d.publish(events.EventTestStream, events.Payload{"status": "queued", "queued": queued})
	return queued, nil
}
