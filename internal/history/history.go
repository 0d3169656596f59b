/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history keeps the play log and answers "what aired recently".
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/navo_radio/internal/models"
)

const maxQueryLimit = 500

// Query filters play log reads.
type Query struct {
	BlockType string
	Since     time.Time
	Limit     int
}

// Service persists play history through gorm.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a history service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record stores one block run, assigning an id when missing.
func (s *Service) Record(ctx context.Context, entry models.PlayHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	s.logger.Debug().Str("id", entry.ID).Str("block", entry.BlockType).Str("result", entry.Result).Msg("play recorded")
	return nil
}

// Recent returns the newest entries first.
func (s *Service) Recent(ctx context.Context, q Query) ([]models.PlayHistory, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = 50
	}

	tx := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if q.BlockType != "" {
		tx = tx.Where("block_type = ?", q.BlockType)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("started_at >= ?", q.Since)
	}

	var rows []models.PlayHistory
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}
	return rows, nil
}

// RecentTrackIDs returns the catalog ids of the last limit successful music plays.
func (s *Service) RecentTrackIDs(ctx context.Context, limit int) (map[string]bool, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.PlayHistory{}).
		Where("track_id <> ? AND result = ?", "", models.ResultOK).
		Order("started_at DESC").
		Limit(limit).
		Pluck("track_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("recent tracks: %w", err)
	}

	recent := make(map[string]bool, len(ids))
	for _, id := range ids {
		recent[id] = true
	}
	return recent, nil
}

// Prune deletes entries that started before cutoff.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&models.PlayHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune plays: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info().Int64("deleted", res.RowsAffected).Time("cutoff", cutoff).Msg("play history pruned")
	}
	return res.RowsAffected, nil
}
