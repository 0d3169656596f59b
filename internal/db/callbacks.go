/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/navo_radio/internal/telemetry"
)

const startTimeKey = "navoradio:start_time"

// RegisterCallbacks times every create, query and delete and records the
// result in the database metrics.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		operation string
		before    func(string) error
		after     func(string) error
	}{
		{
			operation: "create",
			before:    func(name string) error { return cb.Create().Before("gorm:create").Register(name, markStart) },
			after:     func(name string) error { return cb.Create().After("gorm:create").Register(name, observe("create")) },
		},
		{
			operation: "query",
			before:    func(name string) error { return cb.Query().Before("gorm:query").Register(name, markStart) },
			after:     func(name string) error { return cb.Query().After("gorm:query").Register(name, observe("query")) },
		},
		{
			operation: "delete",
			before:    func(name string) error { return cb.Delete().Before("gorm:delete").Register(name, markStart) },
			after:     func(name string) error { return cb.Delete().After("gorm:delete").Register(name, observe("delete")) },
		},
	}

	for _, h := range hooks {
		if err := h.before("telemetry:before_" + h.operation); err != nil {
			return fmt.Errorf("register %s callback: %w", h.operation, err)
		}
		if err := h.after("telemetry:after_" + h.operation); err != nil {
			return fmt.Errorf("register %s callback: %w", h.operation, err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics refreshes the connection pool gauge.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
