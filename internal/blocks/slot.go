/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package blocks

import (
	"context"
	"sync"
	"time"
)

// Slot is a single-slot future: at most one background preparation is in
// flight and its result is claimed exactly once.
type Slot[T any] struct {
	mu      sync.Mutex
	pending *future[T]
}

type future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Prefetch starts prepare in the background unless something is already
// pending. It reports whether a new preparation was started.
func (s *Slot[T]) Prefetch(ctx context.Context, prepare func(context.Context) (T, error)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return false
	}

	f := &future[T]{done: make(chan struct{})}
	s.pending = f
	go func() {
		defer close(f.done)
		f.value, f.err = prepare(ctx)
	}()
	return true
}

// Claim takes the pending result, waiting at most wait for it to finish.
// ok is false when nothing was pending or the preparation is still running
// after wait; in the latter case it stays pending for a later Claim.
func (s *Slot[T]) Claim(ctx context.Context, wait time.Duration) (value T, ok bool, err error) {
	s.mu.Lock()
	f := s.pending
	s.mu.Unlock()
	if f == nil {
		return value, false, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-f.done:
	case <-timer.C:
		return value, false, nil
	case <-ctx.Done():
		return value, false, nil
	}

	s.mu.Lock()
	if s.pending != f {
		// Another caller claimed it first.
		s.mu.Unlock()
		return value, false, nil
	}
	s.pending = nil
	s.mu.Unlock()
	return f.value, true, f.err
}

// Pending reports whether a preparation is in flight or unclaimed.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
