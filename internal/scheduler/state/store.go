/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state persists the scheduler's played-this-hour flags so a restart
// inside an hour does not replay the jingle or a second anchor block.
package state

import (
	"context"
	"sync"
)

// State holds the scheduler flags. A nil field means "not played".
type State struct {
	LastJingleHour *int `json:"last_jingle_hour,omitempty"`
	LastAnchorHour *int `json:"last_anchor_hour,omitempty"`
}

// Hour returns a pointer to h, for building State literals.
func Hour(h int) *int {
	return &h
}

// Clone returns a deep copy so callers never share the flag pointers.
func (s State) Clone() State {
	var out State
	if s.LastJingleHour != nil {
		out.LastJingleHour = Hour(*s.LastJingleHour)
	}
	if s.LastAnchorHour != nil {
		out.LastAnchorHour = Hour(*s.LastAnchorHour)
	}
	return out
}

// Equal reports whether both states carry the same flags.
func (s State) Equal(o State) bool {
	return sameHour(s.LastJingleHour, o.LastJingleHour) && sameHour(s.LastAnchorHour, o.LastAnchorHour)
}

func sameHour(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Store loads and saves scheduler state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps state for the life of the process only.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved state.
func (m *MemoryStore) Load(context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	return nil
}
