/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/navo_radio/internal/scheduler"
)

var (
	scheduleDate  string
	scheduleJSON  bool
	scheduleMusic bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the block decisions for one day",
	Long: `Walk a day minute by minute through the scheduler and print every point
where the decision changes. Nothing is played and no state is persisted.

Examples:
  # Today in the station timezone
  navoradio schedule

  # A specific day as JSON
  navoradio schedule --date 2026-03-14 --json
`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "Day to simulate (YYYY-MM-DD, default today)")
	scheduleCmd.Flags().BoolVar(&scheduleJSON, "json", false, "Print JSON instead of a table")
	scheduleCmd.Flags().BoolVar(&scheduleMusic, "force-music", false, "Simulate always-music mode")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	day := time.Now().In(cfg.Location)
	if scheduleDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", scheduleDate, cfg.Location)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		day = parsed
	}

	schedule := scheduler.NewSchedule(cfg.Schedule, cfg.Location)
	slots := scheduler.SimulateDay(day, schedule, scheduleMusic)

	if scheduleJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(slots)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tBLOCK\tARGUMENT")
	for _, slot := range slots {
		fmt.Fprintf(w, "%s\t%s\t%s\n", slot.At.Format("15:04"), slot.Decision.Type, slot.Decision.Argument)
	}
	return w.Flush()
}
