// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package services

import (
	"context"
	"time"
)

// Collector is any component with a periodic maintenance pass. Satisfied by
// the store's value-log garbage collection.
type Collector interface {
	RunGC()
}

// MaintenanceService runs the collector on a fixed interval until stopped.
type MaintenanceService struct {
	collector Collector
	interval  time.Duration
}

// NewMaintenanceService creates a maintenance ticker service.
func NewMaintenanceService(collector Collector, interval time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MaintenanceService{collector: collector, interval: interval}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collector.RunGC()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String identifies the service in supervisor logs.
func (m *MaintenanceService) String() string { return "store-maintenance" }
