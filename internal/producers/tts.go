/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/config"
	"github.com/friendsincode/navo_radio/internal/media"
)

const (
	// DefaultElevenLabsURL is the text-to-speech endpoint; the voice id is appended.
	DefaultElevenLabsURL   = "https://api.elevenlabs.io/v1/text-to-speech/"
	defaultElevenLabsModel = "eleven_multilingual_v2"

	edgeTimeout = 60 * time.Second
)

// Speaker renders text to an mp3 and returns its path.
type Speaker interface {
	Speak(ctx context.Context, kind, text string) (string, error)
}

// NewSpeaker picks ElevenLabs when selected and keyed, otherwise edge-tts.
func NewSpeaker(cfg *config.Config, cache media.Cache, logger zerolog.Logger) Speaker {
	if strings.EqualFold(cfg.TTSProvider, "elevenlabs") && cfg.ElevenLabsAPIKey != "" {
		return NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, cache, logger)
	}
	return NewEdgeTTS(cfg.EdgeTTSBin, cfg.EdgeTTSVoice, cache, logger)
}

// EdgeTTS shells out to the edge-tts command line tool.
type EdgeTTS struct {
	Bin   string
	Voice string

	cache  media.Cache
	logger zerolog.Logger
}

// NewEdgeTTS creates an edge-tts speaker.
func NewEdgeTTS(bin, voice string, cache media.Cache, logger zerolog.Logger) *EdgeTTS {
	if bin == "" {
		bin = "edge-tts"
	}
	return &EdgeTTS{
		Bin:    bin,
		Voice:  voice,
		cache:  cache,
		logger: logger.With().Str("component", "tts").Str("provider", "edge").Logger(),
	}
}

// Args returns the edge-tts arguments writing text to path.
func (e *EdgeTTS) Args(text, path string) []string {
	args := []string{"--text", text, "--write-media", path}
	if e.Voice != "" {
		args = append([]string{"--voice", e.Voice}, args...)
	}
	return args
}

// Speak implements Speaker.
func (e *EdgeTTS) Speak(ctx context.Context, kind, text string) (string, error) {
	path := e.cache.TTSPath(kind, text)
	if media.Exists(path) {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("edge-tts: create cache dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, edgeTimeout)
	defer cancel()

	tmp := path + ".part"
	defer os.Remove(tmp)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Bin, e.Args(text, tmp)...)
	cmd.Stderr = &stderr
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("edge-tts: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if !media.Exists(tmp) {
		return "", fmt.Errorf("edge-tts: produced no audio")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("edge-tts: publish: %w", err)
	}

	e.logger.Debug().Str("kind", kind).Str("path", path).Dur("took", time.Since(start)).Msg("speech rendered")
	return path, nil
}

// ElevenLabs renders speech through the ElevenLabs HTTP API.
type ElevenLabs struct {
	APIKey  string
	Voice   string
	Model   string
	BaseURL string

	cache  media.Cache
	client *http.Client
	logger zerolog.Logger
}

// NewElevenLabs creates an ElevenLabs speaker.
func NewElevenLabs(apiKey, voice string, cache media.Cache, logger zerolog.Logger) *ElevenLabs {
	if voice == "" {
		voice = "EXAVITQu4vr4xnSDxMaL"
	}
	return &ElevenLabs{
		APIKey:  apiKey,
		Voice:   voice,
		Model:   defaultElevenLabsModel,
		BaseURL: DefaultElevenLabsURL,
		cache:   cache,
		client:  newHTTPClient(30 * time.Second),
		logger:  logger.With().Str("component", "tts").Str("provider", "elevenlabs").Logger(),
	}
}

// Speak implements Speaker.
func (e *ElevenLabs) Speak(ctx context.Context, kind, text string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("elevenlabs: %w: api key is empty", ErrNotConfigured)
	}
	path := e.cache.TTSPath(kind, text)
	if media.Exists(path) {
		return path, nil
	}

	body, err := json.Marshal(map[string]string{"text": text, "model_id": e.Model})
	if err != nil {
		return "", fmt.Errorf("elevenlabs: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+e.Voice, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := do(e.client, "elevenlabs", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	n, err := media.WriteFileAtomic(path, resp.Body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: save speech: %w", err)
	}

	e.logger.Debug().Str("kind", kind).Str("path", path).Int64("bytes", n).Msg("speech rendered")
	return path, nil
}
