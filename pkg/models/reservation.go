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

package models

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a time-bounded exclusive hold on a device. At most one
// reservation per device may be active at any time.
type Reservation struct {
	ID        string            `json:"id"`
	DeviceID  string            `json:"deviceId"`
	UserID    string            `json:"userId"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Status    ReservationStatus `json:"status"`
	Purpose   string            `json:"purpose,omitempty"`
}

// Expired reports whether the reservation deadline has passed at the given
// instant. Only meaningful for active reservations.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationStatusActive && now.After(r.EndTime)
}

// SessionStatus is the lifecycle state of a device-use session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is an instance of device use, nested within (or independent of) a
// reservation. At most one session per device may be active at any time.
type Session struct {
	ID        string        `json:"id"`
	DeviceID  string        `json:"deviceId"`
	UserID    string        `json:"userId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Status    SessionStatus `json:"status"`
}
