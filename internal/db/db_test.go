package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/friendsincode/navo_radio/internal/config"
	"github.com/friendsincode/navo_radio/internal/models"
	"github.com/friendsincode/navo_radio/internal/telemetry"
)

func TestConnectMigrateAndObserve(t *testing.T) {
	cfg := &config.Config{
		Environment: "test",
		DBBackend:   config.DatabaseSQLite,
		DBDSN:       filepath.Join(t.TempDir(), "history.db"),
	}

	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}

	row := models.PlayHistory{ID: "p1", BlockType: "music", Result: models.ResultOK, StartedAt: time.Now()}
	if err := database.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.PlayHistory
	if err := database.First(&got, "id = ?", "p1").Error; err != nil {
		t.Fatalf("query: %v", err)
	}

	if n := testutil.CollectAndCount(telemetry.DatabaseQueryDuration); n == 0 {
		t.Fatal("expected database timings to be observed")
	}

	UpdateConnectionMetrics(database)
	if v := testutil.ToFloat64(telemetry.DatabaseConnectionsActive); v < 1 {
		t.Fatalf("expected an open connection, got %v", v)
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
