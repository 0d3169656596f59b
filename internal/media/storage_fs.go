/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using a local directory.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		logger:  logger,
	}
}

// Fetch returns the path of name inside the root directory.
func (fs *FilesystemStorage) Fetch(ctx context.Context, name string) (string, error) {
	fullPath := filepath.Join(fs.rootDir, SafeName(name))
	if !Exists(fullPath) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, fullPath)
	}

	fs.logger.Debug().Str("path", fullPath).Msg("filesystem storage: asset resolved")
	return fullPath, nil
}

// Kind implements Storage.
func (fs *FilesystemStorage) Kind() string { return "filesystem" }

// CheckAccess verifies the storage directory exists and is accessible.
func (fs *FilesystemStorage) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}
