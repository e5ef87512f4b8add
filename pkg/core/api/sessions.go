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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/reservation"
)

// @Summary List sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/sessions [get]
func (s *APIServer) listSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.Sessions())
}

type createSessionRequest struct {
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
}

// @Summary Start a session on a reserved device
// @Tags sessions
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/sessions [post]
func (s *APIServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	if req.DeviceID == "" || req.UserID == "" {
		s.writeError(w, fmt.Errorf("%w: deviceId and userId are required", errValidation))
		return
	}

	session, err := s.service.StartSession(r.Context(), req.DeviceID, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, session)
}

// @Summary Get one session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /api/sessions/{id} [get]
func (s *APIServer) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.Session(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, session)
}

// @Summary End a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.APIResponse
// @Router /api/sessions/{id}/end [post]
func (s *APIServer) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.EndSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeMessage(w, "session ended")
}

// @Summary List a user's sessions
// @Tags sessions
// @Produce json
// @Param uid path string true "User ID"
// @Success 200 {object} models.APIResponse
// @Router /api/sessions/user/{uid} [get]
func (s *APIServer) userSessions(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.service.SessionsForUser(mux.Vars(r)["uid"]))
}

// @Summary List a device's sessions
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/sessions [get]
func (s *APIServer) deviceSessions(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.service.SessionsForDevice(mux.Vars(r)["id"]))
}

// @Summary List a device's reservations
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/reservations [get]
func (s *APIServer) deviceReservations(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.service.ReservationList(reservation.ReservationFilter{
		DeviceID: mux.Vars(r)["id"],
	}))
}

// @Summary List reservations with optional filters
// @Tags system
// @Produce json
// @Param deviceId query string false "Device ID"
// @Param userId query string false "User ID"
// @Param status query string false "Reservation status"
// @Success 200 {object} models.APIResponse
// @Router /api/system/reservations [get]
func (s *APIServer) listReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := reservation.ReservationFilter{
		DeviceID: q.Get("deviceId"),
		UserID:   q.Get("userId"),
		Status:   models.ReservationStatus(q.Get("status")),
	}

	s.writeSuccess(w, s.service.ReservationList(filter))
}
