/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media resolves podcast episodes and lays out the asset cache.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/config"
)

// ErrNotFound is returned when the requested asset does not exist in storage.
var ErrNotFound = errors.New("media not found")

// Storage interface abstracts where podcast episodes come from.
type Storage interface {
	// Fetch returns a local path for name, downloading it first if needed.
	Fetch(ctx context.Context, name string) (string, error)
	CheckAccess(ctx context.Context) error
	Kind() string
}

// Service resolves podcast episodes through the configured storage.
type Service struct {
	storage Storage
	cache   Cache
	logger  zerolog.Logger
}

// NewService creates a media service using filesystem or S3 storage based on config.
func NewService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	logger = logger.With().Str("component", "media").Logger()
	cache := NewCache(cfg.CacheDir)

	var storage Storage
	if cfg.S3Bucket != "" {
		s3cfg := S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			UsePathStyle:    cfg.S3UsePathStyle,
		}

		if s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, falling back to the default credential chain")
		}

		s3Storage, err := NewS3Storage(ctx, s3cfg, cache, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.PodcastsDir, logger)
	}

	return NewServiceWithStorage(storage, cache, logger), nil
}

// NewServiceWithStorage wires a service around an existing backend.
func NewServiceWithStorage(storage Storage, cache Cache, logger zerolog.Logger) *Service {
	return &Service{
		storage: storage,
		cache:   cache,
		logger:  logger,
	}
}

// Podcast returns a playable local path for an episode file name.
func (s *Service) Podcast(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty podcast name", ErrNotFound)
	}
	path, err := s.storage.Fetch(ctx, name)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Str("storage", s.storage.Kind()).Msg("podcast fetch failed")
		return "", fmt.Errorf("fetch podcast: %w", err)
	}

	s.logger.Debug().Str("name", name).Str("path", path).Msg("podcast resolved")
	return path, nil
}

// Cache returns the asset cache layout.
func (s *Service) Cache() Cache {
	return s.cache
}

// StorageKind names the active backend.
func (s *Service) StorageKind() string {
	return s.storage.Kind()
}

// CheckStorageAccess verifies that the storage backend is accessible.
func (s *Service) CheckStorageAccess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.storage.CheckAccess(ctx)
}
