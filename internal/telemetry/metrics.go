/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Stream pipeline
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navoradio_queue_depth",
		Help: "Items waiting in the stream queue",
	})
	ItemsFed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navoradio_items_fed_total",
		Help: "Queue items fully written to the encoder",
	})
	AssetSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navoradio_asset_skips_total",
		Help: "Assets skipped by the feeder because they were missing or undecodable",
	}, []string{"reason"})
	PipelineRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navoradio_pipeline_restarts_total",
		Help: "Encoder generations spawned",
	})
	PipelineState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "navoradio_pipeline_state",
		Help: "1 for the current pipeline state, 0 otherwise",
	}, []string{"state"})
	FallbackDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navoradio_fallback_deliveries_total",
		Help: "Items played through a one-shot encoder because the pipeline could not start",
	})

	// Blocks
	BlocksRun = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navoradio_blocks_total",
		Help: "Blocks run by type and result",
	}, []string{"type", "result"})
	BlockDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "navoradio_block_duration_seconds",
		Help:    "Time spent preparing and enqueueing a block",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"type"})
	ProducerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navoradio_producer_retries_total",
		Help: "Retried content producer calls",
	}, []string{"producer"})

	// Database
	DatabaseQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "navoradio_database_query_duration_seconds",
		Help:    "Play history database operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
	DatabaseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navoradio_database_errors_total",
		Help: "Play history database operation errors",
	}, []string{"operation", "type"})
	DatabaseConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navoradio_database_connections_active",
		Help: "Open database connections",
	})

	// HTTP
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "navoradio_api_request_duration_seconds",
		Help:    "Status API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navoradio_api_requests_total",
		Help: "Status API requests",
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navoradio_api_active_connections",
		Help: "In-flight status API requests",
	})
	APIWebSocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navoradio_api_websocket_connections",
		Help: "Open event stream websockets",
	})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		ItemsFed,
		AssetSkips,
		PipelineRestarts,
		PipelineState,
		FallbackDeliveries,
		BlocksRun,
		BlockDuration,
		ProducerRetries,
		DatabaseQueryDuration,
		DatabaseErrorsTotal,
		DatabaseConnectionsActive,
		APIRequestDuration,
		APIRequestsTotal,
		APIActiveConnections,
		APIWebSocketConnections,
	)
}

// SetPipelineState flips the state gauge so exactly one label reads 1.
func SetPipelineState(state string) {
	for _, s := range []string{"stopped", "starting", "running"} {
		v := 0.0
		if s == state {
			v = 1
		}
		PipelineState.WithLabelValues(s).Set(v)
	}
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
