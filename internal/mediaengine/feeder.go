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
	"io"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/telemetry"
)

// feederBufferSize is the write buffer between decoder output and encoder stdin.
const feederBufferSize = 64 << 10

// feeder drains the queue into one encoder process.
type feeder struct {
	queue   *Queue
	decoder Decoder
	meter   *LevelMeter
	logger  zerolog.Logger

	onItem func(QueueItem)
	onSkip func(asset string, err error)
	onFed  func(QueueItem)
}

// run feeds items until ctx ends, the encoder exits or the pipe breaks. It
// always stops the encoder before returning.
func (f *feeder) run(ctx context.Context, proc Process) {
	defer func() {
		_ = proc.Stop()
	}()

	buf := bufio.NewWriterSize(proc.Stdin(), feederBufferSize)
	out := f.meter.Wrap(buf)

	for {
		select {
		case <-ctx.Done():
			f.logger.Debug().Msg("feeder cancelled")
			return
		case <-proc.Done():
			f.logger.Warn().Err(proc.Err()).Msg("encoder exited, feeder stopping")
			return
		case item := <-f.queue.Items():
			telemetry.QueueDepth.Set(float64(f.queue.Len()))
			if err := f.feed(ctx, item, out, buf); err != nil {
				if errors.Is(err, ErrPipelineBroken) {
					f.logger.Error().Err(err).Str("item", item.Label).Msg("pipeline broken")
				}
				return
			}
		}
	}
}

// feed writes every asset of item and flushes at the item boundary.
// Skipped assets do not stop the item.
func (f *feeder) feed(ctx context.Context, item QueueItem, out io.Writer, buf *bufio.Writer) error {
	if f.onItem != nil {
		f.onItem(item)
	}

	for _, asset := range item.Assets() {
		err := f.decoder.Decode(ctx, asset, out)
		switch {
		case err == nil:
		case errors.Is(err, ErrPipelineBroken):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			telemetry.AssetSkips.WithLabelValues(skipReason(err)).Inc()
			f.logger.Warn().Err(err).Str("asset", asset).Msg("asset skipped")
			if f.onSkip != nil {
				f.onSkip(asset, err)
			}
		}
	}

	if err := buf.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrPipelineBroken, err)
	}

	telemetry.ItemsFed.Inc()
	if f.onFed != nil {
		f.onFed(item)
	}
	return nil
}

func skipReason(err error) string {
	if errors.Is(err, ErrAssetUnavailable) {
		return "unavailable"
	}
	return "error"
}
