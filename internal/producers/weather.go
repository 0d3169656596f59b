/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWeatherURL is the current conditions endpoint.
const DefaultWeatherURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPI reads current conditions from weatherapi.com.
type WeatherAPI struct {
	APIKey  string
	Query   string
	Lang    string
	BaseURL string

	client *http.Client
	logger zerolog.Logger
}

// NewWeatherAPI creates a weather source for query (a city or "lat,lon").
func NewWeatherAPI(apiKey, query string, logger zerolog.Logger) *WeatherAPI {
	return &WeatherAPI{
		APIKey:  apiKey,
		Query:   query,
		Lang:    "en",
		BaseURL: DefaultWeatherURL,
		client:  newHTTPClient(10 * time.Second),
		logger:  logger.With().Str("component", "weather").Logger(),
	}
}

type weatherResponse struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		WindKph   float64 `json:"wind_kph"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// Report returns a one-line summary of the current weather.
func (w *WeatherAPI) Report(ctx context.Context) (string, error) {
	if w.APIKey == "" {
		return "", fmt.Errorf("weather: %w: api key is empty", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("key", w.APIKey)
	q.Set("q", w.Query)
	if w.Lang != "" {
		q.Set("lang", w.Lang)
	}

	var body weatherResponse
	if err := getJSON(ctx, w.client, "weather", w.BaseURL+"?"+q.Encode(), &body); err != nil {
		return "", err
	}

	city := body.Location.Name
	if city == "" {
		city = w.Query
	}
	report := fmt.Sprintf("City: %s. Temperature %s°C. %s. Wind %s km/h.",
		city,
		strconv.FormatFloat(body.Current.TempC, 'f', -1, 64),
		body.Current.Condition.Text,
		strconv.FormatFloat(body.Current.WindKph, 'f', -1, 64),
	)

	w.logger.Debug().Str("city", city).Msg("weather fetched")
	return report, nil
}
