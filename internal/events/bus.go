/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates event categories.
type EventType string

const (
	EventNowPlaying    EventType = "now_playing"
	EventBlockStart    EventType = "block.start"
	EventBlockEnd      EventType = "block.end"
	EventPipelineState EventType = "pipeline.state"
	EventAssetSkipped  EventType = "pipeline.asset_skipped"
	EventSchedulerMark EventType = "scheduler.mark"
	EventTestStream    EventType = "test_stream"
)

// AllTypes lists every event type, used by subscribers that want the full feed.
var AllTypes = []EventType{
	EventNowPlaying,
	EventBlockStart,
	EventBlockEnd,
	EventPipelineState,
	EventAssetSkipped,
	EventSchedulerMark,
	EventTestStream,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher. Every payload gets an id, type and timestamp.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	if _, ok := payload["id"]; !ok {
		payload["id"] = uuid.NewString()
	}
	payload["type"] = string(eventType)
	payload["at"] = time.Now().UTC().Format(time.RFC3339)

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// SubscribeAll registers one subscriber for several event types.
func (b *Bus) SubscribeAll(types []EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()
	return ch
}

// UnsubscribeAll removes a subscriber registered with SubscribeAll.
func (b *Bus) UnsubscribeAll(types []EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = removeSubscriber(b.subs[t], sub)
	}
	close(sub)
}

func removeSubscriber(subs []Subscriber, sub Subscriber) []Subscriber {
	for i, candidate := range subs {
		if candidate == sub {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = removeSubscriber(b.subs[eventType], sub)
	close(sub)
}
