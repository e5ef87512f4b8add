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

// Package core wires the device lab together: it owns the platform adapters,
// the device registry, the reservation manager, the driver supervisor, and
// the realtime hub, and it implements the hub's command handler.
package core

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/appium"
	"github.com/carverauto/devicelab/pkg/hub"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
	"github.com/carverauto/devicelab/pkg/reservation"
)

// mockSeeder is satisfied by the concrete registry; test doubles may skip it.
type mockSeeder interface {
	SeedMockDevices()
}

// orphanCleaner is satisfied by the concrete supervisor; test doubles may
// skip it.
type orphanCleaner interface {
	CleanupOrphans()
}

// Server is the lab controller. It implements lifecycle.Service and
// hub.Handler.
type Server struct {
	cfg    *Config
	logger logger.Logger

	adapters     map[models.Platform]adapters.Adapter
	registry     registry.DeviceRegistry
	reservations *reservation.Manager
	drivers      appium.DriverSupervisor
	hub          *hub.Hub

	httpServer *http.Server
	apiHandler http.Handler

	startedAt time.Time

	commandsExecuted atomic.Int64
	commandsFailed   atomic.Int64

	hourlyMu       sync.Mutex
	hourlyCommands map[time.Time]int

	tickersCancel context.CancelFunc
	tickersDone   sync.WaitGroup
}

// NewServer builds the full component graph with exec-backed adapters.
func NewServer(cfg *Config, log logger.Logger) *Server {
	runner := adapters.NewExecRunner()

	return newServer(cfg, []adapters.Adapter{
		adapters.NewAndroidAdapter(runner, log),
		adapters.NewIOSAdapter(runner, log),
	}, appium.NewExecLauncher(), log)
}

func newServer(cfg *Config, adapterList []adapters.Adapter, launcher appium.Launcher, log logger.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		logger:         log,
		adapters:       make(map[models.Platform]adapters.Adapter, len(adapterList)),
		hourlyCommands: make(map[time.Time]int),
	}

	for _, adapter := range adapterList {
		s.adapters[adapter.Platform()] = adapter
	}

	// The hub needs the handler at construction; the handler methods only
	// touch fields assigned below, and no subscriber can connect before
	// Start runs.
	s.hub = hub.New(s, cfg.CORS(), log)

	supervisor := appium.NewSupervisor(cfg.Appium, launcher, s.hub, log)
	s.drivers = supervisor

	reg := registry.New(adapterList, s.hub, supervisor, log)
	s.registry = reg
	s.reservations = reservation.NewManager(reg, log)

	// A vanished device must close its reservation and session records, not
	// just its device-level hold.
	reg.SetReservationCompleter(s.reservations)

	return s
}

// Hub exposes the realtime hub for the websocket route.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Reservations exposes the reservation manager for the API layer.
func (s *Server) Reservations() *reservation.Manager {
	return s.reservations
}

// Drivers exposes the driver supervisor for the API layer.
func (s *Server) Drivers() appium.DriverSupervisor {
	return s.drivers
}

// Config returns the active configuration.
func (s *Server) Config() *Config {
	return s.cfg
}

// SetAPIHandler installs the HTTP routing tree served by Start. Must be
// called before Start.
func (s *Server) SetAPIHandler(handler http.Handler) {
	s.apiHandler = handler
}

// Start brings the lab up: orphan driver cleanup, optional mock seeding, one
// synchronous discovery pass, the periodic tickers, and the HTTP listener.
// Implements lifecycle.Service.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	if cleaner, ok := s.drivers.(orphanCleaner); ok {
		cleaner.CleanupOrphans()
	}

	if s.cfg.SeedMockDevices {
		if seeder, ok := s.registry.(mockSeeder); ok {
			seeder.SeedMockDevices()
		}
	}

	devices := s.registry.Discover(ctx)

	s.logger.Info().
		Int("devices", len(devices)).
		Int("port", s.cfg.Port).
		Str("environment", s.cfg.Environment).
		Msg("Device lab starting")

	tickerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.tickersCancel = cancel

	s.runTicker(tickerCtx, time.Duration(s.cfg.DiscoveryInterval), func(ctx context.Context) {
		s.registry.Discover(ctx)
	})

	s.runTicker(tickerCtx, time.Duration(s.cfg.HealthInterval), func(_ context.Context) {
		s.hub.BroadcastSystemHealth(s.Health())
	})

	if s.cfg.ReservationReaper {
		s.runTicker(tickerCtx, time.Duration(s.cfg.ReaperInterval), func(_ context.Context) {
			if reaped := s.reservations.ReapExpired(); reaped > 0 {
				s.logger.Info().Int("count", reaped).Msg("Expired reservations released")
			}
		})
	}

	return s.serveHTTP()
}

// serveHTTP binds the listener synchronously so bind failures surface as
// startup errors, then serves in the background.
func (s *Server) serveHTTP() error {
	if s.apiHandler == nil {
		// Headless mode: realtime and API surfaces disabled, used in tests.
		return nil
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server terminated")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("API listening")

	return nil
}

func (s *Server) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.tickersDone.Add(1)

	go func() {
		defer s.tickersDone.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop shuts the lab down in order: tickers, drivers in parallel, log tails,
// hub, HTTP. Implements lifecycle.Service.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Device lab shutting down")

	if s.tickersCancel != nil {
		s.tickersCancel()
		s.tickersDone.Wait()
	}

	s.drivers.StopAll(ctx)
	s.registry.Stop()
	s.hub.Close()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP shutdown: %w", err)
		}
	}

	return logger.Shutdown()
}

// adapterFor resolves the adapter and vendor serial for a device id.
func (s *Server) adapterFor(deviceID string) (*models.Device, adapters.Adapter, error) {
	device, err := s.registry.Get(deviceID)
	if err != nil {
		return nil, nil, err
	}

	adapter, ok := s.adapters[device.Platform]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAdapterMissing, device.Platform)
	}

	return device, adapter, nil
}
