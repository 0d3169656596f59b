/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/navo_radio/internal/filler"
)

var fillerSeconds int

var fillerCmd = &cobra.Command{
	Use:   "filler",
	Short: "Create the cached silent filler asset",
	RunE:  runFiller,
}

func init() {
	fillerCmd.Flags().IntVar(&fillerSeconds, "seconds", 0, "Filler length in seconds (default from NAVO_FILLER_SECONDS)")
	rootCmd.AddCommand(fillerCmd)
}

func runFiller(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	seconds := fillerSeconds
	if seconds <= 0 {
		seconds = cfg.FillerSeconds
	}

	gen := filler.NewGenerator(cfg.CacheDir, filler.FFmpegSynthesizer{Bin: cfg.FFmpegBin}, logger)
	path, err := gen.EnsureFillerAsset(context.Background(), seconds)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
