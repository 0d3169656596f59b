/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/navo_radio/internal/webhooks"
)

var webhookTestCmd = &cobra.Command{
	Use:   "webhook-test",
	Short: "Send a test alert to NAVO_WEBHOOK_URL",
	RunE:  runWebhookTest,
}

func init() {
	rootCmd.AddCommand(webhookTestCmd)
}

func runWebhookTest(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc := webhooks.NewService(webhooks.Config{
		URL:     cfg.WebhookURL,
		Secret:  cfg.WebhookSecret,
		Station: cfg.StationName,
	}, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Test(ctx); err != nil {
		return err
	}
	fmt.Println("webhook delivered")
	return nil
}
