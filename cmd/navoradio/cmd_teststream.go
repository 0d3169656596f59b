/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/navo_radio/internal/filler"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/playout"
)

var testStreamItems int

var testStreamCmd = &cobra.Command{
	Use:   "test-stream",
	Short: "Stream silent filler to the broadcast endpoint",
	Long: `Connect to the configured Icecast mount and play a run of silent filler
items, without the scheduler or any content producers. Useful to check the
mount, password and ffmpeg build before going on air.

Examples:
  # Default run of 15 eight-second fillers
  navoradio test-stream

  # Shorter check
  navoradio test-stream --items 3
`,
	RunE: runTestStream,
}

func init() {
	testStreamCmd.Flags().IntVar(&testStreamItems, "items", 15, "Number of filler items to play")
	rootCmd.AddCommand(testStreamCmd)
}

func runTestStream(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	pipeline := mediaengine.NewPipeline(mediaengine.Options{
		Encoder:        mediaengine.NewEncoderConfig(cfg),
		QueueCapacity:  cfg.QueueCapacity,
		EnqueueTimeout: cfg.EnqueueTimeout,
	}, logger)
	defer pipeline.Stop()

	if !pipeline.Configured() {
		return fmt.Errorf("test stream: %w", mediaengine.ErrNotConfigured)
	}

	fill := filler.NewGenerator(cfg.CacheDir, filler.FFmpegSynthesizer{Bin: cfg.FFmpegBin}, logger)
	opts := playout.DefaultOptions()
	opts.FillerSeconds = cfg.FillerSeconds
	opts.TestStreamItems = testStreamItems
	director := playout.NewDirector(nil, nil, pipeline, fill, nil, nil, opts, logger)

	ctx, stop := signalContext()
	defer stop()

	queued, err := director.TestStream(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("queued %d items, waiting for the queue to drain\n", queued)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		_, playing := pipeline.NowPlaying()
		if pipeline.QueueLen() == 0 && !playing {
			stats := pipeline.Stats()
			fmt.Printf("done: %d items fed, %d encoder generations\n", stats.ItemsFed, stats.Generations)
			return nil
		}
		if !pipeline.Alive() {
			return fmt.Errorf("test stream: pipeline stopped with %d items queued", pipeline.QueueLen())
		}
	}
}
