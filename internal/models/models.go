/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Play results stored in PlayHistory.Result.
const (
	ResultOK    = "ok"
	ResultError = "error"
	// ResultDeferred marks a track held back because the stream queue was full.
	ResultDeferred = "deferred"
)

// PlayHistory stores one executed block.
type PlayHistory struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	RunID     string `gorm:"type:varchar(36);index"`
	BlockType string `gorm:"type:varchar(16);index"`
	Argument  string `gorm:"type:varchar(255)"`
	Label     string `gorm:"type:varchar(255)"`
	TrackID   string `gorm:"type:varchar(64);index"`
	Intro     string `gorm:"type:text"`
	Main      string `gorm:"type:text"`
	Delivery  string `gorm:"type:varchar(32)"`
	Result    string `gorm:"type:varchar(32);index"`
	Error     string `gorm:"type:text"`
	StartedAt time.Time `gorm:"index"`
	EndedAt   time.Time
}

// Duration is how long the block took to prepare and hand off.
func (p PlayHistory) Duration() time.Duration {
	if p.EndedAt.Before(p.StartedAt) {
		return 0
	}
	return p.EndedAt.Sub(p.StartedAt)
}
