/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:generate mockgen -destination=mock_appium.go -package=appium github.com/carverauto/devicelab/pkg/appium DriverSupervisor

// Package appium supervises the pool of per-device automation driver
// processes: port allocation from a bounded range, spawn with
// device-specific default capabilities, filtered log capture, ready
// detection, and teardown on demand or on device disconnect.
package appium

import (
	"context"

	"github.com/carverauto/devicelab/pkg/models"
)

// DriverSupervisor is the driver pool surface consumed by the core server,
// the API layer, and the registry's disconnect path.
type DriverSupervisor interface {
	// Start launches (or reuses) the driver server for the device and
	// returns its port once the server is ready.
	Start(ctx context.Context, device *models.Device) (int, error)

	// Stop terminates the driver server for the device. Legal in any
	// status; ErrNoServer when none exists.
	Stop(deviceID string) error

	// StopAll terminates every driver in parallel.
	StopAll(ctx context.Context)

	// Get returns a snapshot of the driver record for one device.
	Get(deviceID string) (*models.DriverServer, bool)

	// List returns snapshots of every live driver record.
	List() []*models.DriverServer

	// Logs returns a copy of the filtered log ring for the device.
	Logs(deviceID string) ([]models.LogEntry, error)

	// ClearLogs empties the log ring for the device.
	ClearLogs(deviceID string) error
}

// EventSink receives driver state changes and filtered driver output as
// device-log events. The hub satisfies it.
type EventSink interface {
	BroadcastDeviceLog(entry models.LogEntry)
}
