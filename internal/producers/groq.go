/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGroqURL is the OpenAI compatible chat endpoint.
const DefaultGroqURL = "https://api.groq.com/openai/v1/chat/completions"

const (
	djIntroPrompt = `You are the host of NAVO RADIO. Say 2-3 short sentences before the next track.
Track: "%s"
Artist: %s
Album: %s

Write ONLY the text to be read aloud, no quotes or notes. 1-3 sentences. Informal and warm. Do not repeat the track name at the end.`

	newsPrompt = `You are the news presenter of NAVO RADIO. Turn these headlines into a short spoken bulletin of at most 6 sentences.
Write ONLY the text to be read aloud.

%s`

	weatherPrompt = `You are the weather presenter of NAVO RADIO. Turn this report into 2-3 friendly spoken sentences.
Write ONLY the text to be read aloud.

%s`
)

// FallbackIntro is read when no generated intro is available.
func FallbackIntro(track Track) string {
	return fmt.Sprintf("Now on air: %s with %s.", track.ArtistName, track.Name)
}

// FallbackNews is read when the bulletin can't be generated.
func FallbackNews(headlines string) string {
	if strings.TrimSpace(headlines) == "" {
		return "NAVO Radio news. There are no fresh headlines right now, stay with us for more music."
	}
	return "NAVO Radio news. " + headlines
}

// FallbackWeather is read when the forecast can't be generated.
func FallbackWeather(report string) string {
	if strings.TrimSpace(report) == "" {
		return "NAVO Radio weather. The forecast is not available right now."
	}
	return "NAVO Radio weather. " + report
}

// Groq writes spoken scripts with a hosted LLM.
type Groq struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64

	client *http.Client
	logger zerolog.Logger
}

// NewGroq creates a script writer.
func NewGroq(apiKey, model string, logger zerolog.Logger) *Groq {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &Groq{
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     DefaultGroqURL,
		MaxTokens:   150,
		Temperature: 0.7,
		client:      newHTTPClient(30 * time.Second),
		logger:      logger.With().Str("component", "groq").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// DJIntro writes the lead-in for a track.
func (g *Groq) DJIntro(ctx context.Context, track Track) (string, error) {
	album := track.AlbumName
	if album == "" {
		album = "-"
	}
	return g.complete(ctx, fmt.Sprintf(djIntroPrompt, track.Name, track.ArtistName, album), g.MaxTokens)
}

// NewsScript turns headlines into a bulletin.
func (g *Groq) NewsScript(ctx context.Context, headlines string) (string, error) {
	if strings.TrimSpace(headlines) == "" {
		return "", errors.New("groq: no headlines to summarise")
	}
	return g.complete(ctx, fmt.Sprintf(newsPrompt, headlines), g.MaxTokens*3)
}

// WeatherScript turns a weather report into a forecast.
func (g *Groq) WeatherScript(ctx context.Context, report string) (string, error) {
	if strings.TrimSpace(report) == "" {
		return "", errors.New("groq: no weather report")
	}
	return g.complete(ctx, fmt.Sprintf(weatherPrompt, report), g.MaxTokens)
}

func (g *Groq) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("groq: %w: api key is empty", ErrNotConfigured)
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: g.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("groq: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	start := time.Now()
	resp, err := do(g.client, "groq", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("groq: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("groq: empty completion")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("groq: empty completion")
	}

	g.logger.Debug().Dur("took", time.Since(start)).Int("chars", len(text)).Msg("script generated")
	return text, nil
}
