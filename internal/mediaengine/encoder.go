/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/friendsincode/navo_radio/internal/config"
)

// Canonical PCM format between decoder and encoder.
const (
	PCMSampleRate = 44100
	PCMChannels   = 1
	PCMFormat     = "s16le"
)

// EncoderConfig contains configuration for audio encoding and output
type EncoderConfig struct {
	FFmpegBin string

	// Icecast settings
	Host     string
	Port     int
	Mount    string
	Username string // Usually "source" for Icecast
	Password string

	StreamName  string
	Description string
	Genre       string

	// Encoder settings
	Bitrate    int // kbps
	SampleRate int
	Channels   int
}

// NewEncoderConfig builds the encoder settings from process configuration.
func NewEncoderConfig(cfg *config.Config) EncoderConfig {
	return EncoderConfig{
		FFmpegBin:  cfg.FFmpegBin,
		Host:       cfg.IcecastHost,
		Port:       cfg.IcecastPort,
		Mount:      cfg.IcecastMount,
		Password:   cfg.IcecastPassword,
		StreamName: "NAVO RADIO",
		Bitrate:    cfg.StreamBitrate,
	}.withDefaults()
}

func (c EncoderConfig) withDefaults() EncoderConfig {
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
	if c.Username == "" {
		c.Username = "source"
	}
	if c.Bitrate == 0 {
		c.Bitrate = 128
	}
	if c.SampleRate == 0 {
		c.SampleRate = PCMSampleRate
	}
	if c.Channels == 0 {
		c.Channels = PCMChannels
	}
	return c
}

// Configured reports whether source credentials are present.
func (c EncoderConfig) Configured() bool {
	return c.Password != "" && c.Host != ""
}

// Validate checks the encoder configuration.
func (c EncoderConfig) Validate() error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid icecast port %d", c.Port)
	}
	if c.Bitrate < 32 || c.Bitrate > 320 {
		return fmt.Errorf("bitrate must be between 32 and 320 kbps, got %d", c.Bitrate)
	}
	return nil
}

// ContentType returns the MIME type announced to the endpoint.
func (c EncoderConfig) ContentType() string {
	return "audio/mpeg"
}

// OutputURL returns the icecast:// target including credentials.
func (c EncoderConfig) OutputURL() string {
	u := url.URL{
		Scheme: "icecast",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + strings.TrimPrefix(c.Mount, "/"),
	}
	return u.String()
}

// RedactedURL is OutputURL without the password, for logs.
func (c EncoderConfig) RedactedURL() string {
	return fmt.Sprintf("icecast://%s@%s:%d/%s", c.Username, c.Host, c.Port, strings.TrimPrefix(c.Mount, "/"))
}

// EncoderArgs returns the ffmpeg arguments for the long-lived encoder. Input
// is read at native rate so the pipe exerts backpressure on the feeder.
func (c EncoderConfig) EncoderArgs() []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-re",
		"-f", PCMFormat, "-ar", strconv.Itoa(PCMSampleRate), "-ac", strconv.Itoa(PCMChannels),
		"-i", "pipe:0",
		"-c:a", "libmp3lame",
		"-b:a", strconv.Itoa(c.Bitrate) + "k",
		"-ar", strconv.Itoa(c.SampleRate),
		"-ac", strconv.Itoa(c.Channels),
		"-content_type", c.ContentType(),
	}
	if c.StreamName != "" {
		args = append(args, "-ice_name", c.StreamName)
	}
	if c.Description != "" {
		args = append(args, "-ice_description", c.Description)
	}
	if c.Genre != "" {
		args = append(args, "-ice_genre", c.Genre)
	}
	return append(args, "-f", "mp3", c.OutputURL())
}

// DecoderArgs returns the ffmpeg arguments that normalise asset to raw PCM on stdout.
func DecoderArgs(asset string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", asset,
		"-vn",
		"-f", PCMFormat, "-ar", strconv.Itoa(PCMSampleRate), "-ac", strconv.Itoa(PCMChannels),
		"pipe:1",
	}
}
