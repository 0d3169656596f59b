/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler decides which block is on air for a given wall-clock time.
//
// Decide is a pure function of the time, the hour tables and two flags
// recording whether the jingle and an anchor block already played in the
// current hour. The flags only change through MarkJinglePlayed and
// MarkAnchorPlayed, plus the rollover normalisation Decide hands back.
package scheduler

import (
	"sort"
	"time"

	"github.com/friendsincode/navo_radio/internal/config"
	"github.com/friendsincode/navo_radio/internal/scheduler/state"
)

// BlockType enumerates the kinds of block the station plays.
type BlockType string

const (
	BlockJingle  BlockType = "jingle"
	BlockNews    BlockType = "news"
	BlockWeather BlockType = "weather"
	BlockPodcast BlockType = "podcast"
	BlockMusic   BlockType = "music"
)

// IsAnchor reports whether t is a news, weather or podcast block.
func (t BlockType) IsAnchor() bool {
	return t == BlockNews || t == BlockWeather || t == BlockPodcast
}

// BlockDecision is the answer to "what plays now".
type BlockDecision struct {
	Type     BlockType `json:"type"`
	Argument string    `json:"argument,omitempty"`
}

// State is the scheduler's persisted flag pair.
type State = state.State

// Schedule holds the anchor hour tables in the station timezone.
type Schedule struct {
	Location     *time.Location
	NewsHours    map[int]bool
	WeatherHours map[int]bool
	PodcastFiles map[int]string
}

// NewSchedule builds lookup tables from the configured hour lists.
func NewSchedule(cfg config.Schedule, loc *time.Location) Schedule {
	s := Schedule{
		Location:     loc,
		NewsHours:    make(map[int]bool, len(cfg.NewsHours)),
		WeatherHours: make(map[int]bool, len(cfg.WeatherHours)),
		PodcastFiles: make(map[int]string, len(cfg.PodcastHours)),
	}
	for _, h := range cfg.NewsHours {
		s.NewsHours[h] = true
	}
	for _, h := range cfg.WeatherHours {
		s.WeatherHours[h] = true
	}
	for _, h := range cfg.PodcastHours {
		s.PodcastFiles[h] = cfg.PodcastFiles[h]
	}
	return s
}

// AnchorHours lists every hour carrying an anchor block, sorted.
func (s Schedule) AnchorHours() []int {
	seen := make(map[int]bool)
	for h := range s.NewsHours {
		seen[h] = true
	}
	for h := range s.WeatherHours {
		seen[h] = true
	}
	for h := range s.PodcastFiles {
		seen[h] = true
	}
	hours := make([]int, 0, len(seen))
	for h := range seen {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func (s Schedule) local(now time.Time) time.Time {
	if s.Location == nil {
		return now
	}
	return now.In(s.Location)
}

// Decide returns the block for now and the state with a stale anchor flag
// cleared. The input state is never modified.
func Decide(st State, now time.Time, schedule Schedule, overrideMusic bool) (BlockDecision, State) {
	next := st.Clone()
	if overrideMusic {
		return BlockDecision{Type: BlockMusic}, next
	}

	local := schedule.local(now)
	hour, minute := local.Hour(), local.Minute()

	if next.LastAnchorHour != nil && *next.LastAnchorHour != hour {
		next.LastAnchorHour = nil
	}

	if minute == 0 && (next.LastJingleHour == nil || *next.LastJingleHour != hour) {
		return BlockDecision{Type: BlockJingle}, next
	}

	if next.LastAnchorHour != nil {
		return BlockDecision{Type: BlockMusic}, next
	}

	switch {
	case schedule.NewsHours[hour]:
		return BlockDecision{Type: BlockNews}, next
	case schedule.WeatherHours[hour]:
		return BlockDecision{Type: BlockWeather}, next
	}
	if file, ok := schedule.PodcastFiles[hour]; ok {
		return BlockDecision{Type: BlockPodcast, Argument: file}, next
	}

	return BlockDecision{Type: BlockMusic}, next
}

// MarkJinglePlayed records that the jingle ran in the hour of now.
func MarkJinglePlayed(st State, now time.Time, schedule Schedule) State {
	next := st.Clone()
	next.LastJingleHour = state.Hour(schedule.local(now).Hour())
	return next
}

// MarkAnchorPlayed records that an anchor block ran in the hour of now.
func MarkAnchorPlayed(st State, now time.Time, schedule Schedule) State {
	next := st.Clone()
	next.LastAnchorHour = state.Hour(schedule.local(now).Hour())
	return next
}
