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

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/carverauto/devicelab/pkg/registry DeviceRegistry,EventSink,DriverStopper

// Package registry keeps the canonical in-memory model of every device the
// lab has seen. It runs the discovery cycle against the platform adapters,
// owns the device status machine, and starts and stops the per-device log
// tails.
package registry

import (
	"context"

	"github.com/carverauto/devicelab/pkg/models"
)

// DeviceRegistry is the device store surface consumed by the reservation
// manager, the hub handler, and the API layer.
type DeviceRegistry interface {
	// Get returns a snapshot of one device by synthetic id.
	Get(id string) (*models.Device, error)

	// GetBySerial returns a snapshot of one device by vendor identifier.
	GetBySerial(serial string) (*models.Device, error)

	// List returns snapshots of every device the registry has ever seen,
	// including offline ones.
	List() []*models.Device

	// Counts breaks the registry population down by status.
	Counts() models.DeviceCounts

	// Discover runs one reconciliation cycle against the adapters and
	// returns the post-cycle device list.
	Discover(ctx context.Context) []*models.Device

	// Reserve transitions an online device to reserved for userID.
	Reserve(id, userID string) (*models.Device, error)

	// Release clears the reservation hold and re-admits the device to the
	// pool. Releasing an unreserved device is not an error.
	Release(id string) (*models.Device, error)

	// StartUse transitions a reserved device to in-use.
	StartUse(id string) (*models.Device, error)

	// EndUse ends a period of use: the device returns to reserved when a
	// hold is still in place, otherwise to online.
	EndUse(id string) (*models.Device, error)

	// Stop terminates every log tail the registry owns.
	Stop()
}

// EventSink receives state-change notifications for fan-out to realtime
// subscribers. The hub satisfies it.
type EventSink interface {
	BroadcastDeviceUpdated(device *models.Device)
	BroadcastDeviceList(devices []*models.Device)
	BroadcastDeviceLog(entry models.LogEntry)
}

// DriverStopper tears down the driver server for a device that disappeared.
// The appium supervisor satisfies it.
type DriverStopper interface {
	Stop(deviceID string) error
}

// ReservationCompleter closes the reservation and session records of a
// device that disappeared. The reservation manager satisfies it; without the
// callback a reappeared device would still carry its old active reservation
// record alongside any new one.
type ReservationCompleter interface {
	DeviceOffline(deviceID string)
}
