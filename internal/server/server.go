/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the playout core together and exposes the status API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/navo_radio/internal/blocks"
	"github.com/friendsincode/navo_radio/internal/cache"
	"github.com/friendsincode/navo_radio/internal/config"
	"github.com/friendsincode/navo_radio/internal/db"
	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/filler"
	"github.com/friendsincode/navo_radio/internal/history"
	"github.com/friendsincode/navo_radio/internal/logbuffer"
	"github.com/friendsincode/navo_radio/internal/media"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/playout"
	"github.com/friendsincode/navo_radio/internal/producers"
	"github.com/friendsincode/navo_radio/internal/scheduler"
	"github.com/friendsincode/navo_radio/internal/scheduler/state"
	"github.com/friendsincode/navo_radio/internal/version"
	"github.com/friendsincode/navo_radio/internal/webhooks"
)

// historyRetention is how long play history rows are kept.
const historyRetention = 90 * 24 * time.Hour

// Server bundles the status API and the playout services behind it.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	history   *history.Service
	pipeline  *mediaengine.Pipeline
	director  *playout.Director
	ctrl      *scheduler.Controller
	alerts    *webhooks.Service

	api *statusAPI

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. Background workers start
// with Start.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		bus:       events.NewBus(),
		logBuffer: logBuf,
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}

	if err := srv.initDependencies(bgCtx); err != nil {
		bgCancel()
		_ = srv.Close()
		return nil, err
	}

	srv.api = &statusAPI{
		director:  srv.director,
		stream:    srv.pipeline,
		history:   srv.history,
		logBuffer: logBuf,
		bus:       srv.bus,
		version:   version.String(),
		sched:     srv.ctrl,
		bgCtx:     bgCtx,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	srv.router = newRouter(srv.api)

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Event websockets are long lived; handlers manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies(ctx context.Context) error {
	for _, dir := range []string{s.cfg.CacheDir, s.cfg.JinglesDir, s.cfg.PodcastsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		s.logger.Warn().Err(err).Msg("database metrics callbacks not registered")
	}
	s.history = history.NewService(database, s.logger)

	var store state.Store = state.NewMemoryStore()
	if s.cfg.RedisAddr != "" {
		redisStore, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		}, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis state store unavailable, scheduler state kept in memory")
		} else {
			store = redisStore
			s.DeferClose(redisStore.Close)
		}
	}

	stash, err := cache.New(cache.Config{
		RedisAddr:      s.cfg.RedisAddr,
		RedisPassword:  s.cfg.RedisPassword,
		RedisDB:        s.cfg.RedisDB,
		TTL:            cache.DefaultTTL,
		DisableOnError: true,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	s.DeferClose(stash.Close)

	schedule := scheduler.NewSchedule(s.cfg.Schedule, s.cfg.Location)
	ctrl := scheduler.NewController(schedule, s.cfg.ForceMusic, nil, store, s.bus, s.logger)
	s.ctrl = ctrl
	if err := ctrl.Restore(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler state not restored, starting fresh")
	}

	mediaService, err := media.NewService(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize media service: %w", err)
	}
	if err := mediaService.CheckStorageAccess(); err != nil {
		s.logger.Warn().Err(err).Str("storage", mediaService.StorageKind()).Msg("podcast storage not reachable")
	}
	files := mediaService.Cache()

	s.pipeline = mediaengine.NewPipeline(mediaengine.Options{
		Encoder:        mediaengine.NewEncoderConfig(s.cfg),
		QueueCapacity:  s.cfg.QueueCapacity,
		EnqueueTimeout: s.cfg.EnqueueTimeout,
		Bus:            s.bus,
	}, s.logger)
	s.DeferClose(func() error {
		s.pipeline.Stop()
		return nil
	})
	if !s.pipeline.Configured() {
		s.logger.Warn().Msg("broadcast password not set, the stream stays silent until it is configured")
	}

	fill := filler.NewGenerator(s.cfg.CacheDir, filler.FFmpegSynthesizer{Bin: s.cfg.FFmpegBin}, s.logger)

	runners := blocks.New(blocks.Deps{
		Sink:         s.pipeline,
		JinglePath:   filepath.Join(s.cfg.JinglesDir, s.cfg.JingleFile),
		Catalog:      producers.NewJamendo(s.cfg.JamendoClientID, files, s.logger),
		Writer:       producers.NewGroq(s.cfg.GroqAPIKey, s.cfg.GroqModel, s.logger),
		Speaker:      producers.NewSpeaker(s.cfg, files, s.logger),
		News:         producers.NewRSSNews(s.cfg.NewsRSSURL, s.logger),
		Weather:      producers.NewWeatherAPI(s.cfg.WeatherAPIKey, s.cfg.WeatherQuery, s.logger),
		Podcasts:     mediaService,
		Recent:       s.history,
		Stash:        stash,
		IntroEnabled: true,
	}, s.logger)

	opts := playout.DefaultOptions()
	opts.FillerSeconds = s.cfg.FillerSeconds
	s.director = playout.NewDirector(ctrl, runners, s.pipeline, fill, s.history, s.bus, opts, s.logger)

	s.alerts = webhooks.NewService(webhooks.Config{
		URL:     s.cfg.WebhookURL,
		Secret:  s.cfg.WebhookSecret,
		Station: s.cfg.StationName,
	}, s.bus, s.logger)
	return nil
}

// Start launches the director and housekeeping workers.
func (s *Server) Start() {
	ctx := s.bgCtx

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.director.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("director loop exited")
		}
	}()

	if s.alerts.Enabled() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.alerts.Start(ctx)
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			s.pruneHistory(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) pruneHistory(ctx context.Context) {
	removed, err := s.history.Prune(ctx, time.Now().Add(-historyRetention))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("play history prune failed")
		}
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("rows", removed).Msg("old play history pruned")
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops background workers and releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
