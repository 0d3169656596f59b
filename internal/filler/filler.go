/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package filler synthesises and caches the short silent asset used to
// keep the stream queue from running dry.
package filler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// synthTimeout bounds one ffmpeg run.
const synthTimeout = 15 * time.Second

// Synthesizer writes a silent mp3 of the given length to path.
type Synthesizer interface {
	Synthesize(ctx context.Context, seconds int, path string) error
}

// FFmpegSynthesizer renders silence with ffmpeg's anullsrc source.
type FFmpegSynthesizer struct {
	Bin string
}

// Args returns the ffmpeg arguments for a silent asset.
func Args(seconds int, path string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "anullsrc=r=44100:cl=mono",
		"-t", strconv.Itoa(seconds),
		"-q:a", "9", "-acodec", "libmp3lame",
		"-f", "mp3",
		path,
	}
}

// Synthesize implements Synthesizer.
func (s FFmpegSynthesizer) Synthesize(ctx context.Context, seconds int, path string) error {
	bin := s.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, Args(seconds, path)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg silence: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Generator caches filler assets under <cache>/filler.
type Generator struct {
	dir    string
	synth  Synthesizer
	logger zerolog.Logger
	group  singleflight.Group
}

// NewGenerator creates a generator rooted at cacheDir.
func NewGenerator(cacheDir string, synth Synthesizer, logger zerolog.Logger) *Generator {
	return &Generator{
		dir:    filepath.Join(cacheDir, "filler"),
		synth:  synth,
		logger: logger.With().Str("component", "filler").Logger(),
	}
}

// Path returns where the asset for seconds lives, whether or not it exists.
func (g *Generator) Path(seconds int) string {
	return filepath.Join(g.dir, fmt.Sprintf("silence_%ds.mp3", seconds))
}

// EnsureFillerAsset returns the cached silent asset, synthesising it once
// if needed. Concurrent callers share a single synthesis.
func (g *Generator) EnsureFillerAsset(ctx context.Context, seconds int) (string, error) {
	if seconds <= 0 {
		return "", fmt.Errorf("filler duration must be positive, got %d", seconds)
	}

	path := g.Path(seconds)
	if ready(path) {
		return path, nil
	}

	v, err, shared := g.group.Do(path, func() (any, error) {
		if ready(path) {
			return path, nil
		}
		return path, g.synthesize(ctx, seconds, path)
	})
	if err != nil {
		return "", err
	}
	if shared {
		g.logger.Debug().Str("path", path).Msg("shared filler synthesis")
	}
	return v.(string), nil
}

func (g *Generator) synthesize(ctx context.Context, seconds int, path string) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create filler dir: %w", err)
	}

	tmp, err := os.CreateTemp(g.dir, ".silence-*.mp3")
	if err != nil {
		return fmt.Errorf("create temp filler: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	start := time.Now()
	if err := g.synth.Synthesize(ctx, seconds, tmpPath); err != nil {
		return err
	}
	if !ready(tmpPath) {
		return errors.New("filler synthesis produced an empty file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("publish filler: %w", err)
	}

	g.logger.Info().Str("path", path).Int("seconds", seconds).Dur("took", time.Since(start)).Msg("filler asset created")
	return nil
}

func ready(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
