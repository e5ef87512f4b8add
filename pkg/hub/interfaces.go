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

//go:generate mockgen -destination=mock_hub.go -package=hub github.com/carverauto/devicelab/pkg/hub Handler

// Package hub is the realtime broker between websocket subscribers and the
// rest of the lab: it fans registry updates, session events, driver logs,
// and screen-mirror frames out to every connected client, and routes inbound
// control messages back into the core through the Handler seam.
package hub

import (
	"context"

	"github.com/carverauto/devicelab/pkg/models"
)

// Handler executes inbound subscriber commands. The core server implements
// it; the hub never reaches into other components directly.
type Handler interface {
	// Reserve grants a reservation on a device.
	Reserve(ctx context.Context, deviceID, userID string, durationMinutes int, purpose string) (*models.Reservation, error)

	// Release releases a device and everything attached to it.
	Release(ctx context.Context, deviceID string) error

	// StartSession opens a session on a reserved device.
	StartSession(ctx context.Context, deviceID, userID string) (*models.Session, error)

	// EndSession completes a session.
	EndSession(ctx context.Context, sessionID string) error

	// ExecuteCommand validates and runs a control command against a device.
	// The returned Command carries the final status and any error text.
	ExecuteCommand(ctx context.Context, deviceID string, req *models.CommandRequest) *models.Command

	// RefreshDevices forces a discovery cycle.
	RefreshDevices(ctx context.Context) []*models.Device

	// ListDevices returns the current device snapshot.
	ListDevices() []*models.Device

	// CaptureScreen grabs one PNG frame from a device.
	CaptureScreen(ctx context.Context, deviceID string) ([]byte, error)
}
