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
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/carverauto/devicelab/pkg/core"
	dlhttp "github.com/carverauto/devicelab/pkg/http"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
	"github.com/carverauto/devicelab/pkg/reservation"
	"github.com/carverauto/devicelab/pkg/swagger"
)

// APIServer is the HTTP routing layer over the lab service.
type APIServer struct {
	service Service
	router  *mux.Router
	logger  logger.Logger

	wsHandler http.HandlerFunc
	cors      models.CORSConfig
	apiKey    string
	rateLimit int
	uploadDir string
}

// NewAPIServer builds the routing tree. Options configure the optional
// surfaces; the service is mandatory.
func NewAPIServer(service Service, log logger.Logger, options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		service:   service,
		router:    mux.NewRouter(),
		logger:    log,
		uploadDir: "/tmp/devicelab-uploads",
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithWebSocket mounts the realtime endpoint at /api/ws.
func WithWebSocket(handler http.HandlerFunc) func(*APIServer) {
	return func(s *APIServer) {
		s.wsHandler = handler
	}
}

// WithCORS sets the cross-origin policy.
func WithCORS(cors models.CORSConfig) func(*APIServer) {
	return func(s *APIServer) {
		s.cors = cors
	}
}

// WithAPIKey requires X-API-Key on /api routes. Health stays open for
// probes.
func WithAPIKey(apiKey string) func(*APIServer) {
	return func(s *APIServer) {
		s.apiKey = apiKey
	}
}

// WithRateLimit caps per-client requests per minute.
func WithRateLimit(requestsPerMinute int) func(*APIServer) {
	return func(s *APIServer) {
		s.rateLimit = requestsPerMinute
	}
}

// WithUploadDir sets the staging directory for uploaded app artifacts.
func WithUploadDir(dir string) func(*APIServer) {
	return func(s *APIServer) {
		s.uploadDir = dir
	}
}

// Handler returns the complete middleware-wrapped routing tree.
func (s *APIServer) Handler() http.Handler {
	var handler http.Handler = s.router

	if s.apiKey != "" {
		handler = dlhttp.APIKeyMiddlewareWithOptions(dlhttp.APIKeyOptions{
			APIKey:          s.apiKey,
			ExcludePaths:    []string{"/api/system/health", "/swagger"},
			LogUnauthorized: true,
			Logger:          s.logger,
		})(handler)
	}

	if s.rateLimit > 0 {
		handler = dlhttp.NewRateLimiter(s.rateLimit).Middleware(handler)
	}

	return dlhttp.CommonMiddleware(handler, s.cors, s.logger)
}

func (s *APIServer) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Devices
	api.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/refresh", s.refreshDevices).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/reserve", s.reserveDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/release", s.releaseDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/command", s.executeCommand).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/screenshot", s.captureScreenshot).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/install-app", s.installApp).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/sessions", s.deviceSessions).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/reservations", s.deviceReservations).Methods(http.MethodGet)

	// Typed command shortcuts share the generic dispatch path.
	for _, kind := range []models.CommandType{
		models.CommandTap, models.CommandSwipe, models.CommandDrag,
		models.CommandKey, models.CommandText, models.CommandShell,
	} {
		api.HandleFunc("/devices/{id}/"+string(kind), s.typedCommand(kind)).Methods(http.MethodPost)
	}

	// Driver servers
	api.HandleFunc("/devices/{id}/appium/start", s.startDriver).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/appium/stop", s.stopDriver).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/appium/status", s.driverStatus).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/appium/logs", s.driverLogs).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/appium/logs", s.clearDriverLogs).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/appium/auto-start", s.autoStart).Methods(http.MethodPost)
	api.HandleFunc("/appium/servers", s.listDrivers).Methods(http.MethodGet)

	// Sessions
	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/user/{uid}", s.userSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/end", s.endSession).Methods(http.MethodPost)

	// System
	api.HandleFunc("/system/health", s.systemHealth).Methods(http.MethodGet)
	api.HandleFunc("/system/stats", s.systemStats).Methods(http.MethodGet)
	api.HandleFunc("/system/version", s.systemVersion).Methods(http.MethodGet)
	api.HandleFunc("/system/reservations", s.listReservations).Methods(http.MethodGet)

	// Analytics
	api.HandleFunc("/analytics", s.analyticsSummary).Methods(http.MethodGet)
	api.HandleFunc("/analytics/devices", s.analyticsDevices).Methods(http.MethodGet)
	api.HandleFunc("/analytics/hourly", s.analyticsHourly).Methods(http.MethodGet)

	if s.wsHandler != nil {
		api.HandleFunc("/ws", s.wsHandler)
	}

	// Swagger UI + embedded document
	s.router.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		doc, err := swagger.GetSwaggerJSON()
		if err != nil {
			http.Error(w, "swagger document unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}).Methods(http.MethodGet)

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// writeSuccess emits the uniform envelope with 200.
func (s *APIServer) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeEnvelope(w, http.StatusOK, models.APIResponse{Success: true, Data: data})
}

// writeMessage emits a data-less success with a human-readable message.
func (s *APIServer) writeMessage(w http.ResponseWriter, message string) {
	s.writeEnvelope(w, http.StatusOK, models.APIResponse{Success: true, Message: message})
}

// writeError maps the error onto its status class and emits the envelope.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	s.writeEnvelope(w, statusFor(err), models.APIResponse{Success: false, Error: err.Error()})
}

func (s *APIServer) writeEnvelope(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor converts the typed error taxonomy into HTTP status classes:
// unknown ids are 404, state and validation problems are 400, everything
// else is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, reservation.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDeviceNotAvailable),
		errors.Is(err, registry.ErrIllegalTransition),
		errors.Is(err, reservation.ErrSessionNotActive),
		errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, models.ErrUnknownCommandType),
		errors.Is(err, core.ErrDriverNotReserved),
		errors.Is(err, core.ErrUnsupportedCommand),
		errors.Is(err, errValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
