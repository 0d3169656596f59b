/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks posts station alerts to an operator-configured URL.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/version"
)

// Alert names sent in the "event" field.
const (
	EventBlockFailed     = "block_failed"
	EventPipelineStopped = "pipeline_stopped"
	EventTest            = "test"
)

const maxAttempts = 3

// Payload is the JSON body sent to the webhook endpoint.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Station   string         `json:"station,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Config selects the endpoint. An empty URL disables delivery.
type Config struct {
	URL     string
	Secret  string
	Station string
}

// Service forwards failure events from the bus to the webhook endpoint.
type Service struct {
	cfg        Config
	bus        *events.Bus
	logger     zerolog.Logger
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// NewService creates a new webhook service.
func NewService(cfg Config, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Enabled reports whether an endpoint is configured.
func (s *Service) Enabled() bool {
	return s.cfg.URL != ""
}

// Start listens for block and pipeline events until ctx is done.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() || s.bus == nil {
		return
	}

	blockEnd := s.bus.Subscribe(events.EventBlockEnd)
	pipelineState := s.bus.Subscribe(events.EventPipelineState)
	defer func() {
		s.bus.Unsubscribe(events.EventBlockEnd, blockEnd)
		s.bus.Unsubscribe(events.EventPipelineState, pipelineState)
	}()

	s.logger.Info().Msg("webhook service started")

	// Only a running to stopped transition is worth an alert.
	lastState := ""
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return

		case payload := <-blockEnd:
			if result, _ := payload["result"].(string); result != models.ResultError {
				continue
			}
			s.Send(ctx, EventBlockFailed, map[string]any{
				"run_id": payload["run_id"],
				"block":  payload["block"],
				"error":  payload["error"],
			})

		case payload := <-pipelineState:
			state, _ := payload["state"].(string)
			if state == "stopped" && lastState == "running" {
				s.Send(ctx, EventPipelineStopped, nil)
			}
			lastState = state
		}
	}
}

// Send delivers one alert, retrying transient failures. Errors are logged.
func (s *Service) Send(ctx context.Context, event string, details map[string]any) {
	if !s.Enabled() {
		return
	}
	if err := s.deliver(ctx, Payload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Station:   s.cfg.Station,
		Details:   details,
	}); err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("webhook delivery failed")
		return
	}
	s.logger.Debug().Str("event", event).Msg("webhook delivered")
}

// Test sends a test payload and returns the outcome.
func (s *Service) Test(ctx context.Context) error {
	if !s.Enabled() {
		return fmt.Errorf("webhook url not configured")
	}
	return s.deliver(ctx, Payload{
		Event:     EventTest,
		Timestamp: time.Now().UTC(),
		Station:   s.cfg.Station,
	})
}

func (s *Service) deliver(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(func() error {
		return s.post(ctx, payload.Event, body)
	}, b)
}

func (s *Service) post(ctx context.Context, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create webhook request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Navo-Event", event)
	req.Header.Set("X-Navo-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if s.cfg.Secret != "" {
		req.Header.Set("X-Navo-Signature", Sign(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}

// Sign returns the HMAC-SHA256 signature header value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
