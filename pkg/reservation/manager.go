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

// Package reservation arbitrates exclusive device access: reservations hold a
// device for one user, sessions track periods of active use inside (or
// outside) a hold. Device status changes always go through the registry's
// transition machine, so the at-most-one-active invariants fall out of the
// status gates.
package reservation

import (
	"sort"
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
	"github.com/google/uuid"
)

const defaultReservationDuration = 60 * time.Minute

// Manager owns all Reservation and Session records.
type Manager struct {
	mu           sync.RWMutex
	reservations map[string]*models.Reservation
	sessions     map[string]*models.Session

	devices registry.DeviceRegistry
	logger  logger.Logger
	now     func() time.Time
}

// NewManager creates a reservation manager over the device registry.
func NewManager(devices registry.DeviceRegistry, log logger.Logger) *Manager {
	return &Manager{
		reservations: make(map[string]*models.Reservation),
		sessions:     make(map[string]*models.Session),
		devices:      devices,
		logger:       log,
		now:          time.Now,
	}
}

// Reserve grants an exclusive hold on an online device. A zero duration
// falls back to one hour.
func (m *Manager) Reserve(deviceID, userID string, duration time.Duration, purpose string) (*models.Reservation, error) {
	if duration <= 0 {
		duration = defaultReservationDuration
	}

	// The registry gates on status online, which also guarantees no other
	// active reservation exists for the device.
	if _, err := m.devices.Reserve(deviceID, userID); err != nil {
		return nil, err
	}

	now := m.now()

	res := &models.Reservation{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		UserID:    userID,
		StartTime: now,
		EndTime:   now.Add(duration),
		Status:    models.ReservationStatusActive,
		Purpose:   purpose,
	}

	m.mu.Lock()
	m.reservations[res.ID] = res
	m.mu.Unlock()

	m.logger.Info().
		Str("reservation_id", res.ID).
		Str("device_id", deviceID).
		Str("user_id", userID).
		Time("end_time", res.EndTime).
		Msg("Device reserved")

	return cloneReservation(res), nil
}

// Release completes the active reservation for the device, if one exists,
// and returns the device to the pool either way.
func (m *Manager) Release(deviceID string) error {
	now := m.now()

	m.mu.Lock()

	for _, res := range m.reservations {
		if res.DeviceID == deviceID && res.Status == models.ReservationStatusActive {
			res.Status = models.ReservationStatusCompleted
			res.EndTime = now

			m.logger.Info().
				Str("reservation_id", res.ID).
				Str("device_id", deviceID).
				Msg("Reservation completed")

			break
		}
	}

	m.mu.Unlock()

	_, err := m.devices.Release(deviceID)

	return err
}

// CreateSession opens a period of active use on a reserved device.
func (m *Manager) CreateSession(deviceID, userID string) (*models.Session, error) {
	if _, err := m.devices.StartUse(deviceID); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		UserID:    userID,
		StartTime: m.now(),
		Status:    models.SessionStatusActive,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", session.ID).
		Str("device_id", deviceID).
		Str("user_id", userID).
		Msg("Session started")

	return cloneSession(session), nil
}

// EndSession completes a session. The device returns to reserved when a hold
// is still in place, otherwise to online.
func (m *Manager) EndSession(sessionID string) error {
	now := m.now()

	m.mu.Lock()

	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}

	if session.Status != models.SessionStatusActive {
		m.mu.Unlock()
		return ErrSessionNotActive
	}

	session.Status = models.SessionStatusCompleted
	session.EndTime = &now
	deviceID := session.DeviceID

	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", sessionID).
		Str("device_id", deviceID).
		Msg("Session ended")

	_, err := m.devices.EndUse(deviceID)

	return err
}

// DeviceOffline closes the records of a device that disappeared: the active
// reservation completes and the active session fails. The registry has
// already moved the device offline and cleared its hold, so only records are
// touched here. Satisfies registry.ReservationCompleter.
func (m *Manager) DeviceOffline(deviceID string) {
	now := m.now()

	m.mu.Lock()

	for _, res := range m.reservations {
		if res.DeviceID == deviceID && res.Status == models.ReservationStatusActive {
			res.Status = models.ReservationStatusCompleted
			res.EndTime = now

			m.logger.Info().
				Str("reservation_id", res.ID).
				Str("device_id", deviceID).
				Msg("Reservation completed, device went offline")

			break
		}
	}

	m.mu.Unlock()

	m.FailActiveSession(deviceID)
}

// FailActiveSession marks the active session of a device as failed without
// touching device status. Used when a driver server dies underneath a
// session.
func (m *Manager) FailActiveSession(deviceID string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		if session.DeviceID == deviceID && session.Status == models.SessionStatusActive {
			session.Status = models.SessionStatusFailed
			session.EndTime = &now

			return
		}
	}
}

// ActiveSessionForDevice returns the active session for a device, if any.
func (m *Manager) ActiveSessionForDevice(deviceID string) (*models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.DeviceID == deviceID && session.Status == models.SessionStatusActive {
			return cloneSession(session), true
		}
	}

	return nil, false
}

// ActiveReservationForDevice returns the active reservation for a device, if
// any.
func (m *Manager) ActiveReservationForDevice(deviceID string) (*models.Reservation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, res := range m.reservations {
		if res.DeviceID == deviceID && res.Status == models.ReservationStatusActive {
			return cloneReservation(res), true
		}
	}

	return nil, false
}

// Session returns one session by id.
func (m *Manager) Session(sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return cloneSession(session), nil
}

// Sessions returns all sessions, newest first.
func (m *Manager) Sessions() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterSessions(func(*models.Session) bool { return true })
}

// SessionsForDevice returns all sessions for one device, newest first.
func (m *Manager) SessionsForDevice(deviceID string) []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterSessions(func(s *models.Session) bool { return s.DeviceID == deviceID })
}

// SessionsForUser returns all sessions for one user, newest first.
func (m *Manager) SessionsForUser(userID string) []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterSessions(func(s *models.Session) bool { return s.UserID == userID })
}

// filterSessions collects matching sessions sorted newest first. Caller holds
// at least the read lock.
func (m *Manager) filterSessions(match func(*models.Session) bool) []*models.Session {
	sessions := make([]*models.Session, 0, len(m.sessions))

	for _, session := range m.sessions {
		if match(session) {
			sessions = append(sessions, cloneSession(session))
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})

	return sessions
}

// ReservationFilter narrows the Reservations listing.
type ReservationFilter struct {
	DeviceID string
	UserID   string
	Status   models.ReservationStatus
}

// Reservations returns reservations matching the filter, newest first.
func (m *Manager) Reservations(filter ReservationFilter) []*models.Reservation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reservations := make([]*models.Reservation, 0, len(m.reservations))

	for _, res := range m.reservations {
		if filter.DeviceID != "" && res.DeviceID != filter.DeviceID {
			continue
		}

		if filter.UserID != "" && res.UserID != filter.UserID {
			continue
		}

		if filter.Status != "" && res.Status != filter.Status {
			continue
		}

		reservations = append(reservations, cloneReservation(res))
	}

	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].StartTime.After(reservations[j].StartTime)
	})

	return reservations
}

// Stats summarizes reservation and session counters.
func (m *Manager) Stats() (totalReservations, activeReservations, totalSessions, activeSessions int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalReservations = len(m.reservations)
	totalSessions = len(m.sessions)

	for _, res := range m.reservations {
		if res.Status == models.ReservationStatusActive {
			activeReservations++
		}
	}

	for _, session := range m.sessions {
		if session.Status == models.SessionStatusActive {
			activeSessions++
		}
	}

	return totalReservations, activeReservations, totalSessions, activeSessions
}

// ReapExpired releases every device whose active reservation has passed its
// deadline. Called from a periodic ticker when deadline enforcement is
// enabled.
func (m *Manager) ReapExpired() int {
	now := m.now()

	m.mu.RLock()

	var expired []string

	for _, res := range m.reservations {
		if res.Expired(now) {
			expired = append(expired, res.DeviceID)
		}
	}

	m.mu.RUnlock()

	for _, deviceID := range expired {
		m.logger.Info().Str("device_id", deviceID).Msg("Reservation deadline passed, auto-releasing")

		if err := m.Release(deviceID); err != nil {
			m.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Auto-release failed")
		}
	}

	return len(expired)
}

func cloneReservation(r *models.Reservation) *models.Reservation {
	dst := *r
	return &dst
}

func cloneSession(s *models.Session) *models.Session {
	dst := *s

	if s.EndTime != nil {
		end := *s.EndTime
		dst.EndTime = &end
	}

	return &dst
}
