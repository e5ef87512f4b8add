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
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// @Summary Start the Appium server for a device
// @Tags appium
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/devices/{id}/appium/start [post]
func (s *APIServer) startDriver(w http.ResponseWriter, r *http.Request) {
	driver, err := s.service.StartDriver(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, map[string]interface{}{
		"server":       driver,
		"webdriverUrl": driver.WebDriverURL(r.Host),
	})
}

// @Summary Stop the Appium server and release the device
// @Tags appium
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/appium/stop [post]
func (s *APIServer) stopDriver(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StopDriver(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeMessage(w, "appium server stopped")
}

// @Summary Get the Appium server status for a device
// @Tags appium
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/appium/status [get]
func (s *APIServer) driverStatus(w http.ResponseWriter, r *http.Request) {
	driver, ok := s.service.DriverStatus(mux.Vars(r)["id"])
	if !ok {
		s.writeSuccess(w, map[string]interface{}{"running": false})
		return
	}

	s.writeSuccess(w, map[string]interface{}{
		"running":      true,
		"server":       driver,
		"webdriverUrl": driver.WebDriverURL(r.Host),
	})
}

// @Summary List running Appium servers
// @Tags appium
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/appium/servers [get]
func (s *APIServer) listDrivers(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.ListDrivers())
}

// @Summary Fetch retained Appium server logs for a device
// @Tags appium
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/appium/logs [get]
func (s *APIServer) driverLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.service.DriverLogs(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, logs)
}

// @Summary Clear retained Appium server logs for a device
// @Tags appium
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Router /api/devices/{id}/appium/logs [delete]
func (s *APIServer) clearDriverLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearDriverLogs(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeMessage(w, "appium logs cleared")
}

type autoStartRequest struct {
	UserID   string `json:"userId"`
	Duration int    `json:"duration,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
}

// @Summary Reserve, start a session, and start Appium in one call
// @Tags appium
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/devices/{id}/appium/auto-start [post]
func (s *APIServer) autoStart(w http.ResponseWriter, r *http.Request) {
	var req autoStartRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, fmt.Errorf("%w: %v", errValidation, err))
		return
	}

	if req.UserID == "" {
		s.writeError(w, fmt.Errorf("%w: userId is required", errValidation))
		return
	}

	result, err := s.service.AutoStart(r.Context(), mux.Vars(r)["id"], req.UserID, req.Duration, req.Purpose)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, result)
}
