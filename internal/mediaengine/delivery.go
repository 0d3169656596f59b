/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/navo_radio/internal/telemetry"
)

// DeliveryKind tells how an item reached the air.
type DeliveryKind int

const (
	// DeliveryEnqueued means the item sits in the shared stream queue.
	DeliveryEnqueued DeliveryKind = iota + 1
	// DeliveryFallbackProcess means a one-shot encoder is playing the item.
	DeliveryFallbackProcess
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryEnqueued:
		return "enqueued"
	case DeliveryFallbackProcess:
		return "fallback_process"
	default:
		return "unknown"
	}
}

// Delivery is the result of Deliver.
type Delivery struct {
	Kind DeliveryKind
	done <-chan struct{}
	err  *error
}

// Wait blocks until a fallback process finishes. Enqueued deliveries return
// immediately.
func (d Delivery) Wait(ctx context.Context) error {
	if d.Kind != DeliveryFallbackProcess || d.done == nil {
		return nil
	}
	select {
	case <-d.done:
		return *d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver starts the pipeline and enqueues item. When the pipeline cannot
// start for a reason other than missing configuration, the item is played
// through a one-shot encoder instead and the caller must Wait on it.
func (p *Pipeline) Deliver(ctx context.Context, item QueueItem) (Delivery, error) {
	if item.Main == "" {
		return Delivery{}, ErrInvalidItem
	}

	startErr := p.Start(ctx)
	if startErr == nil {
		if err := p.Enqueue(ctx, item, true); err != nil {
			return Delivery{}, err
		}
		return Delivery{Kind: DeliveryEnqueued}, nil
	}
	if errors.Is(startErr, ErrNotConfigured) || ctx.Err() != nil {
		return Delivery{}, startErr
	}

	p.logger.Warn().Err(startErr).Str("item", item.Label).Msg("pipeline unavailable, using one-shot encoder")
	return p.deliverFallback(ctx, item)
}

func (p *Pipeline) deliverFallback(ctx context.Context, item QueueItem) (Delivery, error) {
	select {
	case p.encoderSlot <- struct{}{}:
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case <-p.ctx.Done():
		return Delivery{}, errors.New("pipeline shut down")
	}

	procCtx, cancel := context.WithCancel(p.ctx)
	proc, err := p.opts.Launcher.Launch(procCtx, p.opts.Encoder.EncoderArgs())
	if err != nil {
		cancel()
		<-p.encoderSlot
		return Delivery{}, fmt.Errorf("launch fallback encoder: %w", err)
	}
	p.fallbacks.Add(1)
	telemetry.FallbackDeliveries.Inc()

	done := make(chan struct{})
	var result error
	f := p.newFeeder("fallback")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		defer func() { <-p.encoderSlot }()
		defer cancel()

		buf := bufio.NewWriterSize(proc.Stdin(), feederBufferSize)
		result = f.feed(procCtx, item, p.meter.Wrap(buf), buf)
		p.nowPlaying.Store(nil)

		// Closing stdin lets the encoder drain and exit on its own.
		_ = proc.Stdin().Close()
		select {
		case <-proc.Done():
		case <-procCtx.Done():
			_ = proc.Stop()
		}
		if result == nil {
			result = proc.Err()
		}
	}()

	return Delivery{Kind: DeliveryFallbackProcess, done: done, err: &result}, nil
}
