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

package appium

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/google/uuid"
)

const (
	defaultBinary       = "appium"
	defaultBasePort     = 4723
	defaultPortCount    = 100
	defaultStartTimeout = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultLogLevel     = "error"

	driverCommandTimeoutSec = 300
)

// readySentinels mark successful driver startup on stdout. The first form is
// Appium's; the second is WebDriverAgent's, which some iOS driver builds
// print instead.
var readySentinels = []string{
	"REST http interface listener started",
	"ServerURLHere->",
}

// Config tunes the supervisor.
type Config struct {
	Binary       string        `json:"binary"`
	BasePort     int           `json:"base_port"`
	PortCount    int           `json:"port_count"`
	StartTimeout time.Duration `json:"-"`
	PollInterval time.Duration `json:"-"`
	LogLevel     string        `json:"log_level"`
}

func (c *Config) withDefaults() {
	if c.Binary == "" {
		c.Binary = defaultBinary
	}

	if c.BasePort == 0 {
		c.BasePort = defaultBasePort
	}

	if c.PortCount == 0 {
		c.PortCount = defaultPortCount
	}

	if c.StartTimeout == 0 {
		c.StartTimeout = defaultStartTimeout
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// driverServer is the supervisor-internal record for one child. Status and
// port are guarded by the supervisor lock; the ring has its own.
type driverServer struct {
	deviceID  string
	port      int
	proc      Process
	status    models.DriverStatus
	ring      *logRing
	startedAt time.Time
}

// Supervisor owns the driver-server pool.
type Supervisor struct {
	mu      sync.Mutex
	servers map[string]*driverServer

	ports    *portAllocator
	launcher Launcher
	sink     EventSink
	logger   logger.Logger
	cfg      Config

	// orphanKill is the best-effort process-name kill used at startup.
	// Swapped out in tests.
	orphanKill func(binary string)
}

// NewSupervisor creates a driver supervisor. A zero Config gets the
// documented defaults (appium on ports [4723, 4823)).
func NewSupervisor(cfg Config, launcher Launcher, sink EventSink, log logger.Logger) *Supervisor {
	cfg.withDefaults()

	return &Supervisor{
		servers:    make(map[string]*driverServer),
		ports:      newPortAllocator(cfg.BasePort, cfg.PortCount),
		launcher:   launcher,
		sink:       sink,
		logger:     log,
		cfg:        cfg,
		orphanKill: killByName,
	}
}

// CleanupOrphans issues a fire-and-forget process-name kill for driver
// instances left behind by a previous run. Never blocks startup.
func (s *Supervisor) CleanupOrphans() {
	binary := s.cfg.Binary

	go func() {
		s.orphanKill(binary)
		s.logger.Debug().Str("binary", binary).Msg("Orphan driver cleanup issued")
	}()
}

func killByName(binary string) {
	_ = exec.Command("pkill", "-f", binary).Run()
}

// Start launches the driver server for the device and blocks until it is
// ready, reusing a live server when one exists. Returns the allocated port.
func (s *Supervisor) Start(ctx context.Context, device *models.Device) (int, error) {
	s.mu.Lock()

	if rec, ok := s.servers[device.ID]; ok {
		port, status := rec.port, rec.status
		s.mu.Unlock()

		if status == models.DriverStatusRunning {
			return port, nil
		}

		// A start is already in flight; join its wait.
		return s.waitReady(ctx, device.ID)
	}

	rec := &driverServer{
		deviceID: device.ID,
		status:   models.DriverStatusStarting,
		ring:     newLogRing(),
	}
	s.servers[device.ID] = rec
	s.mu.Unlock()

	port, err := s.ports.allocate()
	if err != nil {
		s.removeServer(device.ID, rec)
		return 0, err
	}

	args := driverArgs(port, s.cfg.LogLevel, defaultCapabilities(device))

	// The child outlives the request that started it; only Stop or device
	// disappearance terminates it.
	proc, err := s.launcher.Launch(context.WithoutCancel(ctx), s.cfg.Binary, args...)
	if err != nil {
		s.removeServer(device.ID, rec)
		s.ports.release(port)

		return 0, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	s.mu.Lock()
	rec.port = port
	rec.proc = proc
	rec.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info().
		Str("device_id", device.ID).
		Int("port", port).
		Int("pid", proc.PID()).
		Msg("Driver server starting")

	s.systemLog(models.LogLevelInfo, fmt.Sprintf("Appium server starting for %s on port %d", device.Name, port))

	go s.consumeOutput(rec, proc)
	go s.superviseExit(rec, proc)

	return s.waitReady(ctx, device.ID)
}

// removeServer drops the record from the pool if it is still the one the
// caller created; a newer record for the same device is left alone.
func (s *Supervisor) removeServer(deviceID string, rec *driverServer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.servers[deviceID]; ok && current == rec {
		delete(s.servers, deviceID)
	}
}

// waitReady polls the record until it reaches running, fails, or times out.
func (s *Supervisor) waitReady(ctx context.Context, deviceID string) (int, error) {
	deadline := time.Now().Add(s.cfg.StartTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)

	defer ticker.Stop()

	for {
		s.mu.Lock()
		rec, ok := s.servers[deviceID]

		var status models.DriverStatus

		var port int

		if ok {
			status, port = rec.status, rec.port
		}
		s.mu.Unlock()

		switch {
		case !ok:
			// The completion handler removed the record before ready.
			return 0, ErrStartFailed
		case status == models.DriverStatusRunning:
			return port, nil
		case status == models.DriverStatusError:
			return 0, ErrStartFailed
		}

		if time.Now().After(deadline) {
			// The child may still exist; orphan cleanup at next startup is
			// the final backstop.
			s.teardown(deviceID)

			return 0, ErrStartTimeout
		}

		select {
		case <-ctx.Done():
			s.teardown(deviceID)
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// consumeOutput pipes child output through the log filter into the ring,
// watching for the ready sentinel.
func (s *Supervisor) consumeOutput(rec *driverServer, proc Process) {
	for line := range proc.Lines() {
		if s.matchSentinel(rec, line) {
			s.systemLog(models.LogLevelInfo, fmt.Sprintf("Appium server ready on port %d", rec.port))
		}

		cleaned, keep := FilterLine(line)
		if !keep {
			continue
		}

		entry := models.LogEntry{
			ID:        uuid.New().String(),
			DeviceID:  rec.deviceID,
			Timestamp: time.Now(),
			Level:     classifyLevel(cleaned),
			Tag:       "appium",
			Message:   cleaned,
		}

		if rec.ring.append(entry) {
			s.sink.BroadcastDeviceLog(entry)
		}
	}
}

// matchSentinel promotes the record to running on the first ready sentinel.
// Returns true only on the promoting observation.
func (s *Supervisor) matchSentinel(rec *driverServer, line string) bool {
	sentinel := false

	for _, marker := range readySentinels {
		if strings.Contains(line, marker) {
			sentinel = true
			break
		}
	}

	if !sentinel {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.status != models.DriverStatusStarting {
		return false
	}

	rec.status = models.DriverStatusRunning

	return true
}

// superviseExit handles child termination: the record leaves the pool and
// its port returns to the range.
func (s *Supervisor) superviseExit(rec *driverServer, proc Process) {
	<-proc.Done()

	status := models.DriverStatusStopped
	if proc.ExitCode() != 0 {
		status = models.DriverStatusError
	}

	s.mu.Lock()

	removed := false

	if current, ok := s.servers[rec.deviceID]; ok && current == rec {
		rec.status = status
		delete(s.servers, rec.deviceID)

		removed = true
	}
	s.mu.Unlock()

	// Teardown releases the port when it removes the record; releasing here
	// as well could free a port a newer server has already claimed.
	if removed {
		s.ports.release(rec.port)
	}

	s.logger.Info().
		Str("device_id", rec.deviceID).
		Int("exit_code", proc.ExitCode()).
		Str("status", string(status)).
		Msg("Driver server exited")

	level := models.LogLevelInfo
	if status == models.DriverStatusError {
		level = models.LogLevelError
	}

	s.systemLog(level, fmt.Sprintf("Appium server for device %s exited (%s)", rec.deviceID, status))
}

// Stop terminates the driver server for the device. Legal in any status.
func (s *Supervisor) Stop(deviceID string) error {
	if !s.teardown(deviceID) {
		return fmt.Errorf("%w: %s", ErrNoServer, deviceID)
	}

	s.systemLog(models.LogLevelInfo, fmt.Sprintf("Appium server for device %s stopped", deviceID))

	return nil
}

// teardown removes the record and signals the child. Returns whether a
// record existed.
func (s *Supervisor) teardown(deviceID string) bool {
	s.mu.Lock()
	rec, ok := s.servers[deviceID]
	delete(s.servers, deviceID)
	s.mu.Unlock()

	if !ok {
		return false
	}

	if rec.proc != nil {
		rec.proc.Terminate()
	}

	if rec.port != 0 {
		s.ports.release(rec.port)
	}

	return true
}

// StopAll terminates every driver in parallel. Used at shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()

	ids := make([]string, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = s.Stop(id)
		}()
	}

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Driver stop-all interrupted by shutdown deadline")
	}
}

// Get returns a snapshot of the driver record for one device.
func (s *Supervisor) Get(deviceID string) (*models.DriverServer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.servers[deviceID]
	if !ok {
		return nil, false
	}

	return snapshotOf(rec), true
}

// List returns snapshots of every live driver record.
func (s *Supervisor) List() []*models.DriverServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.DriverServer, 0, len(s.servers))
	for _, rec := range s.servers {
		out = append(out, snapshotOf(rec))
	}

	return out
}

// Logs returns a copy of the filtered log ring for the device.
func (s *Supervisor) Logs(deviceID string) ([]models.LogEntry, error) {
	s.mu.Lock()
	rec, ok := s.servers[deviceID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoServer, deviceID)
	}

	return rec.ring.snapshot(), nil
}

// ClearLogs empties the log ring for the device.
func (s *Supervisor) ClearLogs(deviceID string) error {
	s.mu.Lock()
	rec, ok := s.servers[deviceID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoServer, deviceID)
	}

	rec.ring.clear()

	return nil
}

func snapshotOf(rec *driverServer) *models.DriverServer {
	snapshot := &models.DriverServer{
		DeviceID:  rec.deviceID,
		Port:      rec.port,
		Status:    rec.status,
		StartedAt: rec.startedAt,
	}

	if rec.proc != nil {
		snapshot.PID = rec.proc.PID()
	}

	return snapshot
}

// systemLog emits a driver state change as a device-log event on the
// synthetic system source.
func (s *Supervisor) systemLog(level models.LogLevel, message string) {
	s.sink.BroadcastDeviceLog(models.LogEntry{
		ID:        uuid.New().String(),
		DeviceID:  models.SystemLogSource,
		Timestamp: time.Now(),
		Level:     level,
		Tag:       "appium",
		Message:   message,
	})
}

// defaultCapabilities derives the driver's default-capabilities blob from
// the device record.
func defaultCapabilities(device *models.Device) models.DriverCapabilities {
	caps := models.DriverCapabilities{
		PlatformName:      "Android",
		PlatformVersion:   device.PlatformVersion,
		DeviceName:        device.Name,
		UDID:              device.Serial,
		AutomationName:    "UiAutomator2",
		NewCommandTimeout: driverCommandTimeoutSec,
		NoReset:           true,
	}

	if device.Platform == models.IOS {
		caps.PlatformName = "iOS"
		caps.AutomationName = "XCUITest"
	}

	return caps
}

func driverArgs(port int, logLevel string, caps models.DriverCapabilities) []string {
	blob, _ := json.Marshal(caps)

	return []string{
		"--port", strconv.Itoa(port),
		"--session-override",
		"--log-level", logLevel,
		"--default-capabilities", string(blob),
	}
}

// classifyLevel maps a filtered driver line onto the log level ladder.
func classifyLevel(line string) models.LogLevel {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		return models.LogLevelError
	case strings.Contains(lower, "warn"):
		return models.LogLevelWarn
	default:
		return models.LogLevelInfo
	}
}
