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
	"net/http"

	"github.com/carverauto/devicelab/pkg/version"
)

// @Summary System health snapshot
// @Tags system
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/system/health [get]
func (s *APIServer) systemHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.Health())
}

// @Summary Counters for devices, reservations, and sessions
// @Tags system
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/system/stats [get]
func (s *APIServer) systemStats(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.Stats())
}

// @Summary Build version
// @Tags system
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/system/version [get]
func (s *APIServer) systemVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, map[string]string{
		"version": version.GetVersion(),
		"build":   version.GetFullVersion(),
	})
}

// @Summary Usage summary since startup
// @Tags analytics
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/analytics [get]
func (s *APIServer) analyticsSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.UsageSummary())
}

// @Summary Per-device usage breakdown
// @Tags analytics
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/analytics/devices [get]
func (s *APIServer) analyticsDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.DeviceUsage())
}

// @Summary Hourly usage buckets
// @Tags analytics
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/analytics/hourly [get]
func (s *APIServer) analyticsHourly(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.service.HourlyUsage())
}
