/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

const (
	minQueueCapacity = 1
	maxQueueCapacity = 64
)

// Schedule holds the hour tables for anchor blocks.
type Schedule struct {
	NewsHours    []int          `yaml:"news_hours"`
	WeatherHours []int          `yaml:"weather_hours"`
	PodcastHours []int          `yaml:"podcast_hours"`
	PodcastFiles map[int]string `yaml:"podcast_files"`
}

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Icecast broadcast endpoint
	IcecastHost     string
	IcecastPort     int
	IcecastMount    string
	IcecastPassword string
	StreamBitrate   int // kbps

	FFmpegBin  string
	Timezone   string
	Location   *time.Location
	ForceMusic bool
	Schedule   Schedule

	// Filesystem layout
	DataRoot    string
	CacheDir    string
	JinglesDir  string
	PodcastsDir string
	JingleFile  string

	// Stream pipeline tuning
	QueueCapacity  int
	EnqueueTimeout time.Duration
	FillerSeconds  int

	// Scheduler state store (empty address = in-memory)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Play history
	DBBackend DatabaseBackend
	DBDSN     string

	// Optional S3 object storage for podcast episodes
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3Prefix          string
	S3UsePathStyle    bool

	// Content producers
	JamendoClientID  string
	GroqAPIKey       string
	GroqModel        string
	TTSProvider      string
	EdgeTTSBin       string
	EdgeTTSVoice     string
	ElevenLabsAPIKey string
	ElevenLabsVoice  string
	WeatherAPIKey    string
	WeatherQuery     string
	NewsRSSURL       string

	// Outbound failure alerts (empty URL = disabled)
	WebhookURL    string
	WebhookSecret string
	StationName   string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// DefaultSchedule returns the station's stock anchor tables.
func DefaultSchedule() Schedule {
	return Schedule{
		NewsHours:    []int{9, 12, 15, 18, 21},
		WeatherHours: []int{10, 14, 17, 20},
		PodcastHours: []int{11, 16, 19, 22},
		PodcastFiles: map[int]string{11: "1.mp3", 16: "2.mp3", 19: "3.mp3", 22: "4.mp4"},
	}
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	dataRoot := getEnvAny([]string{"NAVO_DATA_ROOT"}, ".")

	cfg := &Config{
		Environment: getEnvAny([]string{"NAVO_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"NAVO_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"NAVO_HTTP_PORT"}, 8765),

		IcecastHost:     getEnvAny([]string{"NAVO_ICECAST_HOST", "ICECAST_HOST"}, "localhost"),
		IcecastPort:     getEnvIntAny([]string{"NAVO_ICECAST_PORT", "ICECAST_PORT"}, 8000),
		IcecastMount:    getEnvAny([]string{"NAVO_ICECAST_MOUNT", "ICECAST_MOUNT"}, "stream"),
		IcecastPassword: getEnvAny([]string{"NAVO_ICECAST_PASSWORD", "ICECAST_PASSWORD"}, ""),
		StreamBitrate:   getEnvIntAny([]string{"NAVO_STREAM_BITRATE"}, 128),

		FFmpegBin:  getEnvAny([]string{"NAVO_FFMPEG_BIN", "FFMPEG_PATH"}, "ffmpeg"),
		Timezone:   getEnvAny([]string{"NAVO_TIMEZONE", "TZ"}, "Europe/Moscow"),
		ForceMusic: getEnvBoolAny([]string{"NAVO_FORCE_MUSIC", "FORCE_MUSIC"}, true),

		DataRoot:    dataRoot,
		CacheDir:    resolveDir(dataRoot, getEnvAny([]string{"NAVO_CACHE_DIR"}, "cache")),
		JinglesDir:  resolveDir(dataRoot, getEnvAny([]string{"NAVO_JINGLES_DIR"}, "jingles")),
		PodcastsDir: resolveDir(dataRoot, getEnvAny([]string{"NAVO_PODCASTS_DIR"}, "podcasts")),
		JingleFile:  getEnvAny([]string{"NAVO_JINGLE_FILE", "JINGLE_FILE"}, "jingle.mp3"),

		QueueCapacity:  getEnvIntAny([]string{"NAVO_QUEUE_CAPACITY"}, 8),
		EnqueueTimeout: time.Duration(getEnvIntAny([]string{"NAVO_ENQUEUE_TIMEOUT_SECONDS"}, 30)) * time.Second,
		FillerSeconds:  getEnvIntAny([]string{"NAVO_FILLER_SECONDS"}, 8),

		RedisAddr:     getEnvAny([]string{"NAVO_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"NAVO_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"NAVO_REDIS_DB"}, 0),

		DBBackend: DatabaseBackend(getEnvAny([]string{"NAVO_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"NAVO_DB_DSN"}, filepath.Join(dataRoot, "navoradio.db")),

		S3AccessKeyID:     getEnvAny([]string{"NAVO_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"NAVO_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"NAVO_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"NAVO_S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"NAVO_S3_ENDPOINT"}, ""),
		S3Prefix:          getEnvAny([]string{"NAVO_S3_PREFIX"}, "podcasts/"),
		S3UsePathStyle:    getEnvBoolAny([]string{"NAVO_S3_USE_PATH_STYLE"}, false),

		JamendoClientID:  getEnvAny([]string{"NAVO_JAMENDO_CLIENT_ID", "JAMENDO_CLIENT_ID"}, ""),
		GroqAPIKey:       getEnvAny([]string{"NAVO_GROQ_API_KEY", "GROQ_API_KEY"}, ""),
		GroqModel:        getEnvAny([]string{"NAVO_GROQ_MODEL"}, "llama-3.3-70b-versatile"),
		TTSProvider:      getEnvAny([]string{"NAVO_TTS_PROVIDER", "TTS_PROVIDER"}, "edge"),
		EdgeTTSBin:       getEnvAny([]string{"NAVO_EDGE_TTS_BIN"}, "edge-tts"),
		EdgeTTSVoice:     getEnvAny([]string{"NAVO_EDGE_TTS_VOICE"}, "ru-RU-DmitryNeural"),
		ElevenLabsAPIKey: getEnvAny([]string{"NAVO_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY"}, ""),
		ElevenLabsVoice:  getEnvAny([]string{"NAVO_ELEVENLABS_VOICE"}, "EXAVITQu4vr4xnSDxMaL"),
		WeatherAPIKey:    getEnvAny([]string{"NAVO_WEATHER_API_KEY", "WEATHER_API_KEY"}, ""),
		WeatherQuery:     getEnvAny([]string{"NAVO_WEATHER_QUERY"}, "38.54,68.78"),
		NewsRSSURL:       getEnvAny([]string{"NAVO_NEWS_RSS_URL"}, "https://asiaplustj.info/en/rss"),

		WebhookURL:    getEnvAny([]string{"NAVO_WEBHOOK_URL"}, ""),
		WebhookSecret: getEnvAny([]string{"NAVO_WEBHOOK_SECRET"}, ""),
		StationName:   getEnvAny([]string{"NAVO_STATION_NAME"}, "NAVO Radio"),

		TracingEnabled:    getEnvBoolAny([]string{"NAVO_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"NAVO_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"NAVO_TRACING_SAMPLE_RATE"}, 1.0),
	}

	schedule, err := loadSchedule()
	if err != nil {
		return nil, err
	}
	cfg.Schedule = schedule

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.QueueCapacity < minQueueCapacity || cfg.QueueCapacity > maxQueueCapacity {
		return nil, fmt.Errorf("NAVO_QUEUE_CAPACITY must be between %d and %d, got %d", minQueueCapacity, maxQueueCapacity, cfg.QueueCapacity)
	}

	if cfg.IcecastPort <= 0 || cfg.IcecastPort > 65535 {
		return nil, fmt.Errorf("invalid icecast port %d", cfg.IcecastPort)
	}

	if cfg.FillerSeconds <= 0 {
		return nil, fmt.Errorf("NAVO_FILLER_SECONDS must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") && strings.EqualFold(cfg.IcecastPassword, "hackme") {
		return nil, fmt.Errorf("NAVO_ICECAST_PASSWORD must be set to a non-default value in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// BroadcastConfigured reports whether source credentials for the endpoint are present.
func (c *Config) BroadcastConfigured() bool {
	return c != nil && c.IcecastPassword != ""
}

// Addr returns the status server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// loadSchedule starts from the stock tables, applies the optional YAML
// schedule file and then the per-table environment overrides.
func loadSchedule() (Schedule, error) {
	schedule := DefaultSchedule()

	if path := getEnvAny([]string{"NAVO_SCHEDULE_FILE"}, ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Schedule{}, fmt.Errorf("read schedule file: %w", err)
		}
		var fromFile Schedule
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return Schedule{}, fmt.Errorf("parse schedule file: %w", err)
		}
		if fromFile.NewsHours != nil {
			schedule.NewsHours = fromFile.NewsHours
		}
		if fromFile.WeatherHours != nil {
			schedule.WeatherHours = fromFile.WeatherHours
		}
		if fromFile.PodcastHours != nil {
			schedule.PodcastHours = fromFile.PodcastHours
		}
		if fromFile.PodcastFiles != nil {
			schedule.PodcastFiles = fromFile.PodcastFiles
		}
	}

	var err error
	if schedule.NewsHours, err = getEnvHoursAny([]string{"NAVO_NEWS_HOURS"}, schedule.NewsHours); err != nil {
		return Schedule{}, err
	}
	if schedule.WeatherHours, err = getEnvHoursAny([]string{"NAVO_WEATHER_HOURS"}, schedule.WeatherHours); err != nil {
		return Schedule{}, err
	}
	if schedule.PodcastHours, err = getEnvHoursAny([]string{"NAVO_PODCAST_HOURS"}, schedule.PodcastHours); err != nil {
		return Schedule{}, err
	}

	// NAVO_PODCAST_FILES pairs positionally with the podcast hours.
	if raw := getEnvAny([]string{"NAVO_PODCAST_FILES"}, ""); raw != "" {
		files := splitList(raw)
		hours := append([]int(nil), schedule.PodcastHours...)
		sort.Ints(hours)
		if len(files) != len(hours) {
			return Schedule{}, fmt.Errorf("NAVO_PODCAST_FILES has %d entries for %d podcast hours", len(files), len(hours))
		}
		schedule.PodcastFiles = make(map[int]string, len(files))
		for i, hour := range hours {
			schedule.PodcastFiles[hour] = files[i]
		}
	}

	for _, hours := range [][]int{schedule.NewsHours, schedule.WeatherHours, schedule.PodcastHours} {
		for _, h := range hours {
			if h < 0 || h > 23 {
				return Schedule{}, fmt.Errorf("schedule hour %d out of range", h)
			}
		}
	}
	for _, h := range schedule.PodcastHours {
		if schedule.PodcastFiles[h] == "" {
			return Schedule{}, fmt.Errorf("podcast hour %d has no file", h)
		}
	}

	return schedule, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ICECAST_PASSWORD": "use NAVO_ICECAST_PASSWORD",
		"FFMPEG_PATH":      "use NAVO_FFMPEG_BIN",
		"FORCE_MUSIC":      "use NAVO_FORCE_MUSIC",
		"TTS_PROVIDER":     "use NAVO_TTS_PROVIDER",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	sort.Strings(warnings)
	return warnings
}

func resolveDir(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvHoursAny parses a comma separated hour list such as "9,12,15".
func getEnvHoursAny(keys []string, def []int) ([]int, error) {
	raw := getEnvAny(keys, "")
	if raw == "" {
		return def, nil
	}
	parts := splitList(raw)
	hours := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid hour %q", keys[0], p)
		}
		hours = append(hours, h)
	}
	return hours, nil
}
