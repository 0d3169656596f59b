/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/navo_radio/internal/events"
	"github.com/friendsincode/navo_radio/internal/history"
	"github.com/friendsincode/navo_radio/internal/logbuffer"
	"github.com/friendsincode/navo_radio/internal/mediaengine"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/playout"
	"github.com/friendsincode/navo_radio/internal/scheduler"
	"github.com/friendsincode/navo_radio/internal/telemetry"
)

// DirectorStatus is the part of the director the API reads and triggers.
type DirectorStatus interface {
	Status() playout.Status
	StartTestStream(ctx context.Context) bool
}

// StreamStatus is the read side of the stream pipeline.
type StreamStatus interface {
	Stats() mediaengine.Stats
	NowPlaying() (mediaengine.QueueItem, bool)
	Level() float64
	Configured() bool
}

// SchedulerStatus exposes the scheduler flags.
type SchedulerStatus interface {
	State() scheduler.State
	OverrideMusic() bool
	Now() time.Time
}

// HistoryReader lists recent blocks.
type HistoryReader interface {
	Recent(ctx context.Context, q history.Query) ([]models.PlayHistory, error)
}

type statusAPI struct {
	director  DirectorStatus
	stream    StreamStatus
	sched     SchedulerStatus
	history   HistoryReader
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	version   string
	bgCtx     context.Context
	logger    zerolog.Logger
}

func newRouter(a *statusAPI) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("navo-radio-api"))
	router.Use(telemetry.MetricsMiddleware)

	router.Get("/healthz", a.handleHealth)
	router.Get("/level", a.handleLevel)
	router.Handle("/metrics", telemetry.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/history", a.handleHistory)
		r.Get("/logs", a.handleLogs)
		r.Post("/test-stream", a.handleTestStream)
		r.Get("/events", a.handleEvents)
	})

	return router
}

func (a *statusAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    a.version,
		"configured": a.stream.Configured(),
	})
}

func (a *statusAPI) handleLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"level": a.stream.Level()})
}

type statusResponse struct {
	Version       string            `json:"version"`
	LocalTime     string            `json:"local_time,omitempty"`
	OverrideMusic bool              `json:"override_music"`
	Scheduler     scheduler.State   `json:"scheduler"`
	Director      playout.Status    `json:"director"`
	Pipeline      mediaengine.Stats `json:"pipeline"`
	NowPlaying    *nowPlaying       `json:"now_playing,omitempty"`
}

type nowPlaying struct {
	Label string `json:"label,omitempty"`
	Intro string `json:"intro,omitempty"`
	Main  string `json:"main"`
}

func (a *statusAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  a.version,
		Director: a.director.Status(),
		Pipeline: a.stream.Stats(),
	}
	if a.sched != nil {
		resp.LocalTime = a.sched.Now().Format(time.RFC3339)
		resp.OverrideMusic = a.sched.OverrideMusic()
		resp.Scheduler = a.sched.State()
	}
	if item, ok := a.stream.NowPlaying(); ok {
		resp.NowPlaying = &nowPlaying{Label: item.Label, Intro: item.Intro, Main: item.Main}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *statusAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{BlockType: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = since
	}

	rows, err := a.history.Recent(r.Context(), q)
	if err != nil {
		a.logger.Error().Err(err).Msg("list play history failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": rows, "count": len(rows)})
}

func (a *statusAPI) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Block:     r.URL.Query().Get("block"),
		Search:    r.URL.Query().Get("search"),
		Limit:     200,
		Newest:    true,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			q.Limit = limit
		}
	}

	entries := a.logBuffer.Find(q)
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "count": len(entries)})
}

func (a *statusAPI) handleTestStream(w http.ResponseWriter, r *http.Request) {
	if !a.stream.Configured() {
		writeError(w, http.StatusServiceUnavailable, "broadcast_not_configured")
		return
	}
	ctx := a.bgCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if !a.director.StartTestStream(ctx) {
		writeError(w, http.StatusConflict, "test_stream_running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (a *statusAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	types := parseEventTypes(r.URL.Query().Get("types"))
	sub := a.bus.SubscribeAll(types)
	defer a.bus.UnsubscribeAll(types, sub)

	// Reads are only needed to notice the client going away.
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		case payload, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				a.logger.Warn().Err(err).Msg("encode event")
				continue
			}
			if err := conn.Write(ctx, ws.MessageText, data); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// parseEventTypes reads a comma separated filter; empty means every type.
func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return events.AllTypes
	}
	known := make(map[events.EventType]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		if t := events.EventType(strings.TrimSpace(part)); known[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return events.AllTypes
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
