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

package core

import (
	"context"

	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/reservation"
)

// GetDevice returns one device snapshot by id.
func (s *Server) GetDevice(id string) (*models.Device, error) {
	return s.registry.Get(id)
}

// Session returns one session by id.
func (s *Server) Session(sessionID string) (*models.Session, error) {
	return s.reservations.Session(sessionID)
}

// Sessions returns all sessions, newest first.
func (s *Server) Sessions() []*models.Session {
	return s.reservations.Sessions()
}

// SessionsForDevice returns all sessions for one device, newest first.
func (s *Server) SessionsForDevice(deviceID string) []*models.Session {
	return s.reservations.SessionsForDevice(deviceID)
}

// SessionsForUser returns all sessions for one user, newest first.
func (s *Server) SessionsForUser(userID string) []*models.Session {
	return s.reservations.SessionsForUser(userID)
}

// ReservationList returns reservations matching the filter, newest first.
func (s *Server) ReservationList(filter reservation.ReservationFilter) []*models.Reservation {
	return s.reservations.Reservations(filter)
}

// ActiveReservationForDevice returns the device's active reservation, if any.
func (s *Server) ActiveReservationForDevice(deviceID string) (*models.Reservation, bool) {
	return s.reservations.ActiveReservationForDevice(deviceID)
}

// StopDriver stops the driver and releases the device with the full cascade.
func (s *Server) StopDriver(ctx context.Context, deviceID string) error {
	return s.Release(ctx, deviceID)
}

// DriverStatus returns the driver record for one device.
func (s *Server) DriverStatus(deviceID string) (*models.DriverServer, bool) {
	return s.drivers.Get(deviceID)
}

// ListDrivers returns every live driver record.
func (s *Server) ListDrivers() []*models.DriverServer {
	return s.drivers.List()
}

// DriverLogs returns a copy of the filtered log ring for the device.
func (s *Server) DriverLogs(deviceID string) ([]models.LogEntry, error) {
	return s.drivers.Logs(deviceID)
}

// ClearDriverLogs empties the log ring for the device.
func (s *Server) ClearDriverLogs(deviceID string) error {
	return s.drivers.ClearLogs(deviceID)
}
