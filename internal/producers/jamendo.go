/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/media"
)

// DefaultJamendoURL is the track search endpoint.
const DefaultJamendoURL = "https://api.jamendo.com/v3.0/tracks"

// DefaultTags is the station's music pool.
var DefaultTags = []string{"world", "folk", "ethnic"}

// ErrNoTracks is returned when a catalog search comes back empty.
var ErrNoTracks = errors.New("catalog returned no tracks")

// Track is a playable catalog entry.
type Track struct {
	ID         string
	Name       string
	ArtistName string
	AlbumName  string
	Duration   int
	AudioURL   string
}

// Jamendo picks and downloads tracks from the Jamendo catalog.
type Jamendo struct {
	ClientID string
	BaseURL  string
	Tags     []string
	Limit    int

	cache    media.Cache
	client   *http.Client
	download *http.Client
	intn     func(int) int
	logger   zerolog.Logger
}

// NewJamendo creates a catalog client caching downloads in cache.
func NewJamendo(clientID string, cache media.Cache, logger zerolog.Logger) *Jamendo {
	return &Jamendo{
		ClientID: clientID,
		BaseURL:  DefaultJamendoURL,
		Tags:     DefaultTags,
		Limit:    20,
		cache:    cache,
		client:   newHTTPClient(30 * time.Second),
		download: newHTTPClient(120 * time.Second),
		intn:     rand.IntN,
		logger:   logger.With().Str("component", "jamendo").Logger(),
	}
}

type jamendoResponse struct {
	Headers struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	} `json:"headers"`
	Results []struct {
		ID         json.Number `json:"id"`
		Name       string      `json:"name"`
		ArtistName string      `json:"artist_name"`
		AlbumName  string      `json:"album_name"`
		Duration   json.Number `json:"duration"`
		Audio      string      `json:"audio"`
	} `json:"results"`
}

// Search lists tracks for a tag.
func (j *Jamendo) Search(ctx context.Context, tag string) ([]Track, error) {
	if j.ClientID == "" {
		return nil, fmt.Errorf("jamendo: %w: client id is empty", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("client_id", j.ClientID)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(j.Limit))
	if tag != "" {
		q.Set("tags", tag)
	}

	var body jamendoResponse
	if err := getJSON(ctx, j.client, "jamendo", j.BaseURL+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if body.Headers.Status != "success" {
		return nil, fmt.Errorf("jamendo: api status %q: %s", body.Headers.Status, body.Headers.ErrorMessage)
	}

	tracks := make([]Track, 0, len(body.Results))
	for _, r := range body.Results {
		if r.Audio == "" || r.ID == "" {
			continue
		}
		duration, _ := r.Duration.Int64()
		tracks = append(tracks, Track{
			ID:         r.ID.String(),
			Name:       r.Name,
			ArtistName: r.ArtistName,
			AlbumName:  r.AlbumName,
			Duration:   int(duration),
			AudioURL:   r.Audio,
		})
	}
	return tracks, nil
}

// Pick returns a random track for a random tag from the pool, avoiding ids
// in recent when the search offers anything else.
func (j *Jamendo) Pick(ctx context.Context, recent map[string]bool) (Track, error) {
	tag := ""
	if len(j.Tags) > 0 {
		tag = j.Tags[j.intn(len(j.Tags))]
	}

	tracks, err := j.Search(ctx, tag)
	if err != nil {
		return Track{}, err
	}

	fresh := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if !recent[t.ID] {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		fresh = tracks
	}
	if len(fresh) == 0 {
		return Track{}, fmt.Errorf("jamendo: %w for tag %q", ErrNoTracks, tag)
	}

	track := fresh[j.intn(len(fresh))]
	j.logger.Debug().Str("tag", tag).Str("track_id", track.ID).Int("candidates", len(fresh)).Msg("track picked")
	return track, nil
}

// Download stores the track under <cache>/tracks unless it is already cached.
func (j *Jamendo) Download(ctx context.Context, track Track) (string, error) {
	path := j.cache.TrackPath(track.ID)
	if media.Exists(path) {
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.AudioURL, nil)
	if err != nil {
		return "", fmt.Errorf("jamendo: build download request: %w", err)
	}
	resp, err := do(j.download, "jamendo download", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	n, err := media.WriteFileAtomic(path, resp.Body)
	if err != nil {
		return "", fmt.Errorf("jamendo: save track %s: %w", track.ID, err)
	}

	j.logger.Info().Str("track_id", track.ID).Str("path", path).Int64("bytes", n).Msg("track downloaded")
	return path, nil
}
