/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import "time"

// Slot is one entry of a simulated day: the decision that became current at At.
type Slot struct {
	At       time.Time     `json:"at"`
	Decision BlockDecision `json:"decision"`
}

// SimulateDay walks a day minute by minute from midnight in the schedule's
// timezone, marking jingles and anchors played as soon as they are decided,
// and returns every point where the decision changes. Music runs are
// collapsed into one slot.
func SimulateDay(day time.Time, schedule Schedule, overrideMusic bool) []Slot {
	local := schedule.local(day)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	end := start.AddDate(0, 0, 1)

	var (
		st    State
		slots []Slot
		last  *BlockDecision
	)
	for now := start; now.Before(end); now = now.Add(time.Minute) {
		decision, next := Decide(st, now, schedule, overrideMusic)
		st = next

		switch {
		case decision.Type == BlockJingle:
			st = MarkJinglePlayed(st, now, schedule)
		case decision.Type.IsAnchor():
			st = MarkAnchorPlayed(st, now, schedule)
		}

		if last == nil || *last != decision || decision.Type != BlockMusic {
			d := decision
			slots = append(slots, Slot{At: now, Decision: d})
			last = &d
		}
	}
	return slots
}
