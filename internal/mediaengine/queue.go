/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"time"

	"github.com/friendsincode/navo_radio/internal/telemetry"
)

// QueueItem is one playable unit: an optional spoken intro followed by the main asset.
type QueueItem struct {
	Intro string `json:"intro,omitempty"`
	Main  string `json:"main"`
	Label string `json:"label,omitempty"`
}

// Assets returns the files to decode in play order.
func (i QueueItem) Assets() []string {
	if i.Intro == "" {
		return []string{i.Main}
	}
	return []string{i.Intro, i.Main}
}

// Queue is a bounded FIFO shared by producers and the feeder.
type Queue struct {
	ch chan QueueItem
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan QueueItem, capacity)}
}

// Put adds item. Non-blocking puts fail with ErrQueueFull; blocking puts
// wait up to timeout for space.
func (q *Queue) Put(ctx context.Context, item QueueItem, blocking bool, timeout time.Duration) error {
	if !blocking {
		select {
		case q.ch <- item:
			telemetry.QueueDepth.Set(float64(len(q.ch)))
			return nil
		default:
			return ErrQueueFull
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- item:
		telemetry.QueueDepth.Set(float64(len(q.ch)))
		return nil
	case <-timer.C:
		return ErrEnqueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items is the feeder's receive side.
func (q *Queue) Items() <-chan QueueItem {
	return q.ch
}

// Len returns the number of waiting items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
