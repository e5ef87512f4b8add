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

//go:generate mockgen -destination=mock_api.go -package=api github.com/carverauto/devicelab/pkg/core/api Service

// Package api serves the request-response surface of the lab controller:
// device listing and control, reservations and sessions, driver management,
// system health, and analytics, all behind the uniform response envelope.
package api

import (
	"context"

	"github.com/carverauto/devicelab/pkg/core"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/reservation"
)

// Service is the lab surface the API routes against. The core server
// implements it.
type Service interface {
	ListDevices() []*models.Device
	GetDevice(id string) (*models.Device, error)
	RefreshDevices(ctx context.Context) []*models.Device

	Reserve(ctx context.Context, deviceID, userID string, durationMinutes int, purpose string) (*models.Reservation, error)
	Release(ctx context.Context, deviceID string) error

	ExecuteCommand(ctx context.Context, deviceID string, req *models.CommandRequest) *models.Command
	InstallApp(ctx context.Context, deviceID, appPath string) error
	CaptureScreen(ctx context.Context, deviceID string) ([]byte, error)

	StartSession(ctx context.Context, deviceID, userID string) (*models.Session, error)
	EndSession(ctx context.Context, sessionID string) error
	Session(sessionID string) (*models.Session, error)
	Sessions() []*models.Session
	SessionsForDevice(deviceID string) []*models.Session
	SessionsForUser(userID string) []*models.Session

	ReservationList(filter reservation.ReservationFilter) []*models.Reservation
	ActiveReservationForDevice(deviceID string) (*models.Reservation, bool)

	StartDriver(ctx context.Context, deviceID string) (*models.DriverServer, error)
	StopDriver(ctx context.Context, deviceID string) error
	DriverStatus(deviceID string) (*models.DriverServer, bool)
	ListDrivers() []*models.DriverServer
	DriverLogs(deviceID string) ([]models.LogEntry, error)
	ClearDriverLogs(deviceID string) error
	AutoStart(ctx context.Context, deviceID, userID string, durationMinutes int, purpose string) (*core.AutoStartResult, error)

	Health() *models.SystemHealth
	Stats() *models.SystemStats
	UsageSummary() *models.UsageSummary
	DeviceUsage() []*models.DeviceUsage
	HourlyUsage() []*models.HourlyUsage
}
