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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/hub"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
	"github.com/carverauto/devicelab/pkg/reservation"
)

// fakeRegistry implements registry.DeviceRegistry with the same status gates
// as the real one.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newFakeRegistry(devices ...*models.Device) *fakeRegistry {
	reg := &fakeRegistry{devices: make(map[string]*models.Device)}

	for _, d := range devices {
		reg.devices[d.ID] = d
	}

	return reg
}

func (f *fakeRegistry) Get(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	return d.Clone(), nil
}

func (f *fakeRegistry) GetBySerial(serial string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.devices {
		if d.Serial == serial {
			return d.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: serial %s", registry.ErrDeviceNotFound, serial)
}

func (f *fakeRegistry) List() []*models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d.Clone())
	}

	return out
}

func (f *fakeRegistry) Counts() models.DeviceCounts {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := models.DeviceCounts{Total: len(f.devices)}

	for _, d := range f.devices {
		switch d.Status {
		case models.DeviceStatusOnline:
			counts.Online++
		case models.DeviceStatusOffline:
			counts.Offline++
		case models.DeviceStatusUnauthorized:
			counts.Unauthorized++
		case models.DeviceStatusReserved:
			counts.Reserved++
		case models.DeviceStatusInUse:
			counts.InUse++
		}
	}

	return counts
}

func (f *fakeRegistry) Discover(_ context.Context) []*models.Device {
	return f.List()
}

func (f *fakeRegistry) Reserve(id, userID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	if d.Status != models.DeviceStatusOnline {
		return nil, fmt.Errorf("%w: device is %s", registry.ErrDeviceNotAvailable, d.Status)
	}

	d.Status = models.DeviceStatusReserved
	d.ReservedBy = userID

	return d.Clone(), nil
}

func (f *fakeRegistry) Release(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	if d.Status == models.DeviceStatusReserved || d.Status == models.DeviceStatusInUse {
		d.Status = models.DeviceStatusOnline
	}

	d.ReservedBy = ""

	return d.Clone(), nil
}

func (f *fakeRegistry) StartUse(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	if d.Status != models.DeviceStatusReserved {
		return nil, fmt.Errorf("%w: device is %s", registry.ErrIllegalTransition, d.Status)
	}

	d.Status = models.DeviceStatusInUse

	return d.Clone(), nil
}

func (f *fakeRegistry) EndUse(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, id)
	}

	if d.Status == models.DeviceStatusInUse {
		if d.ReservedBy != "" {
			d.Status = models.DeviceStatusReserved
		} else {
			d.Status = models.DeviceStatusOnline
		}
	}

	return d.Clone(), nil
}

func (f *fakeRegistry) Stop() {}

// fakeSupervisor implements appium.DriverSupervisor over a plain map.
type fakeSupervisor struct {
	mu       sync.Mutex
	servers  map[string]*models.DriverServer
	startErr error
	nextPort int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{servers: make(map[string]*models.DriverServer), nextPort: 4723}
}

func (f *fakeSupervisor) Start(_ context.Context, device *models.Device) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return 0, f.startErr
	}

	if rec, ok := f.servers[device.ID]; ok {
		return rec.Port, nil
	}

	port := f.nextPort
	f.nextPort++

	f.servers[device.ID] = &models.DriverServer{
		DeviceID:  device.ID,
		Port:      port,
		Status:    models.DriverStatusRunning,
		StartedAt: time.Now(),
	}

	return port, nil
}

func (f *fakeSupervisor) Stop(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.servers[deviceID]; !ok {
		return fmt.Errorf("no driver server for device %s", deviceID)
	}

	delete(f.servers, deviceID)

	return nil
}

func (f *fakeSupervisor) StopAll(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.servers = make(map[string]*models.DriverServer)
}

func (f *fakeSupervisor) Get(deviceID string) (*models.DriverServer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.servers[deviceID]
	if !ok {
		return nil, false
	}

	snapshot := *rec

	return &snapshot, true
}

func (f *fakeSupervisor) List() []*models.DriverServer {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.DriverServer, 0, len(f.servers))

	for _, rec := range f.servers {
		snapshot := *rec
		out = append(out, &snapshot)
	}

	return out
}

func (f *fakeSupervisor) Logs(_ string) ([]models.LogEntry, error) { return nil, nil }
func (f *fakeSupervisor) ClearLogs(_ string) error                 { return nil }

// fakeAdapter records invocations; every operation succeeds unless failErr
// is set.
type fakeAdapter struct {
	platform    models.Platform
	unsupported map[models.CommandType]bool
	failErr     error

	mu    sync.Mutex
	calls []string
	shell string
}

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
}

func (f *fakeAdapter) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) Enumerate(_ context.Context) ([]adapters.DiscoveredDevice, error) {
	return nil, nil
}

func (f *fakeAdapter) GetProperties(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeAdapter) GetBattery(_ context.Context, _ string) (int, error) { return 100, nil }

func (f *fakeAdapter) GetResolution(_ context.Context, _ string) (models.Resolution, error) {
	return models.Resolution{Width: 1080, Height: 2400}, nil
}

func (f *fakeAdapter) GetOrientation(_ context.Context, _ string) (models.Orientation, error) {
	return models.OrientationPortrait, nil
}

func (f *fakeAdapter) CaptureScreenshot(_ context.Context, serial string) ([]byte, error) {
	f.record("screenshot:" + serial)

	if f.failErr != nil {
		return nil, f.failErr
	}

	return []byte("png"), nil
}

func (f *fakeAdapter) Tap(_ context.Context, serial string, x, y int) error {
	f.record(fmt.Sprintf("tap:%s:%d,%d", serial, x, y))
	return f.failErr
}

func (f *fakeAdapter) Swipe(_ context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	f.record(fmt.Sprintf("swipe:%s:%d,%d-%d,%d:%d", serial, x1, y1, x2, y2, durationMs))
	return f.failErr
}

func (f *fakeAdapter) Drag(_ context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	f.record(fmt.Sprintf("drag:%s:%d,%d-%d,%d:%d", serial, x1, y1, x2, y2, durationMs))
	return f.failErr
}

func (f *fakeAdapter) KeyEvent(_ context.Context, serial string, keycode int) error {
	f.record(fmt.Sprintf("key:%s:%d", serial, keycode))
	return f.failErr
}

func (f *fakeAdapter) InputText(_ context.Context, serial, text string) error {
	f.record("text:" + serial + ":" + text)
	return f.failErr
}

func (f *fakeAdapter) InstallApp(_ context.Context, serial, appPath string) error {
	f.record("install:" + serial + ":" + appPath)
	return f.failErr
}

func (f *fakeAdapter) UninstallApp(_ context.Context, serial, packageName string) error {
	f.record("uninstall:" + serial + ":" + packageName)
	return f.failErr
}

func (f *fakeAdapter) ExecuteShell(_ context.Context, serial, command string) (string, error) {
	f.record("shell:" + serial + ":" + command)

	if f.failErr != nil {
		return "", f.failErr
	}

	return f.shell, nil
}

func (f *fakeAdapter) TailLogs(_ context.Context, _ string, _ adapters.LogSink) (adapters.StopFunc, error) {
	return func() {}, nil
}

func (f *fakeAdapter) Supports(kind models.CommandType) bool {
	return !f.unsupported[kind]
}

func newTestServer(t *testing.T, reg *fakeRegistry, androidAdapter, iosAdapter *fakeAdapter) (*Server, *fakeSupervisor) {
	t.Helper()

	cfg := &Config{}
	cfg.withDefaults()

	log := logger.NewTestLogger()

	s := &Server{
		cfg:            cfg,
		logger:         log,
		adapters:       make(map[models.Platform]adapters.Adapter),
		registry:       reg,
		hourlyCommands: make(map[time.Time]int),
		startedAt:      time.Now(),
	}

	if androidAdapter != nil {
		s.adapters[models.Android] = androidAdapter
	}

	if iosAdapter != nil {
		s.adapters[models.IOS] = iosAdapter
	}

	s.hub = hub.New(s, cfg.CORS(), log)
	t.Cleanup(s.hub.Close)

	supervisor := newFakeSupervisor()
	s.drivers = supervisor
	s.reservations = reservation.NewManager(reg, log)

	return s, supervisor
}

func onlineDevice(id string, platform models.Platform) *models.Device {
	return &models.Device{
		ID:       id,
		Serial:   "serial-" + id,
		Platform: platform,
		Name:     "Device " + id,
		Status:   models.DeviceStatusOnline,
	}
}

func TestExecuteCommandTap(t *testing.T) {
	android := &fakeAdapter{platform: models.Android}
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, _ := newTestServer(t, reg, android, nil)

	payload, _ := json.Marshal(models.TapPayload{X: 100, Y: 200})
	cmd := s.ExecuteCommand(t.Context(), "dev-1", &models.CommandRequest{Type: models.CommandTap, Payload: payload})

	assert.Equal(t, models.CommandStatusCompleted, cmd.Status)
	assert.Empty(t, cmd.Error)
	assert.Equal(t, []string{"tap:serial-dev-1:100,200"}, android.recorded())
	assert.Equal(t, int64(1), s.commandsExecuted.Load())
}

func TestExecuteCommandShellReturnsOutput(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, shell: "Pixel 7\n"}
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, _ := newTestServer(t, reg, android, nil)

	payload, _ := json.Marshal(models.ShellPayload{Command: "getprop ro.product.model"})
	cmd := s.ExecuteCommand(t.Context(), "dev-1", &models.CommandRequest{Type: models.CommandShell, Payload: payload})

	assert.Equal(t, models.CommandStatusCompleted, cmd.Status)
	assert.Equal(t, "Pixel 7\n", cmd.Result)
}

func TestExecuteCommandUnsupportedNeverReachesAdapter(t *testing.T) {
	ios := &fakeAdapter{platform: models.IOS, unsupported: map[models.CommandType]bool{models.CommandShell: true}}
	reg := newFakeRegistry(onlineDevice("dev-ios", models.IOS))
	s, _ := newTestServer(t, reg, nil, ios)

	payload, _ := json.Marshal(models.ShellPayload{Command: "ls"})
	cmd := s.ExecuteCommand(t.Context(), "dev-ios", &models.CommandRequest{Type: models.CommandShell, Payload: payload})

	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "not supported")
	assert.Empty(t, ios.recorded())
	assert.Equal(t, int64(1), s.commandsFailed.Load())
}

func TestExecuteCommandInvalidPayload(t *testing.T) {
	android := &fakeAdapter{platform: models.Android}
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, _ := newTestServer(t, reg, android, nil)

	payload, _ := json.Marshal(models.TapPayload{X: -5, Y: 10})
	cmd := s.ExecuteCommand(t.Context(), "dev-1", &models.CommandRequest{Type: models.CommandTap, Payload: payload})

	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Empty(t, android.recorded())
}

func TestExecuteCommandUnknownDevice(t *testing.T) {
	reg := newFakeRegistry()
	s, _ := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)

	cmd := s.ExecuteCommand(t.Context(), "ghost", &models.CommandRequest{Type: models.CommandTap})

	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.ErrorContains(t, errors.New(cmd.Error), "not found")
}

func TestAutoStartHappyPath(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, supervisor := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)

	result, err := s.AutoStart(t.Context(), "dev-1", "alice", 120, "wdio")
	require.NoError(t, err)

	assert.Equal(t, "alice", result.Reservation.UserID)
	assert.Equal(t, models.ReservationStatusActive, result.Reservation.Status)
	assert.WithinDuration(t, result.Reservation.StartTime.Add(120*time.Minute), result.Reservation.EndTime, time.Second)

	assert.Equal(t, models.SessionStatusActive, result.Session.Status)
	assert.Equal(t, models.DriverStatusRunning, result.Driver.Status)
	assert.GreaterOrEqual(t, result.Driver.Port, 4723)
	assert.Contains(t, result.WebDriverURL, fmt.Sprintf(":%d/wd/hub", result.Driver.Port))
	assert.Equal(t, "UiAutomator2", result.Capabilities.AutomationName)

	device, err := reg.Get("dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusInUse, device.Status)

	_, ok := supervisor.Get("dev-1")
	assert.True(t, ok)
}

func TestAutoStartUnwindsOnDriverFailure(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, supervisor := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)
	supervisor.startErr = errors.New("spawn failed")

	_, err := s.AutoStart(t.Context(), "dev-1", "alice", 60, "")
	require.Error(t, err)

	// Reservation unwound: the device is back in the pool.
	device, getErr := reg.Get("dev-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.Empty(t, device.ReservedBy)
}

func TestAutoStartRejectsOfflineDevice(t *testing.T) {
	offline := onlineDevice("dev-1", models.Android)
	offline.Status = models.DeviceStatusOffline

	reg := newFakeRegistry(offline)
	s, _ := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)

	_, err := s.AutoStart(t.Context(), "dev-1", "alice", 60, "")
	assert.ErrorIs(t, err, registry.ErrDeviceNotAvailable)
}

func TestReleaseCascades(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, supervisor := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)

	_, err := s.AutoStart(t.Context(), "dev-1", "alice", 60, "")
	require.NoError(t, err)

	require.NoError(t, s.Release(t.Context(), "dev-1"))

	// Driver record absent.
	_, ok := supervisor.Get("dev-1")
	assert.False(t, ok)

	// Session ended, reservation completed, device back online.
	_, active := s.reservations.ActiveSessionForDevice("dev-1")
	assert.False(t, active)

	_, reserved := s.reservations.ActiveReservationForDevice("dev-1")
	assert.False(t, reserved)

	device, err := reg.Get("dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.Empty(t, device.ReservedBy)
}

func TestStartDriverRequiresHold(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android))
	s, _ := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, nil)

	_, err := s.StartDriver(t.Context(), "dev-1")
	assert.ErrorIs(t, err, ErrDriverNotReserved)
}

func TestHealthAndStats(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android), onlineDevice("dev-2", models.IOS))
	s, _ := newTestServer(t, reg, &fakeAdapter{platform: models.Android}, &fakeAdapter{platform: models.IOS})

	_, err := s.Reserve(t.Context(), "dev-1", "alice", 30, "")
	require.NoError(t, err)

	health := s.Health()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Devices.Total)
	assert.Equal(t, 1, health.Devices.Reserved)
	assert.Positive(t, health.Goroutines)

	stats := s.Stats()
	assert.Equal(t, 1, stats.TotalReservations)
	assert.Equal(t, 1, stats.ActiveReservations)
}

func TestAnalyticsAggregation(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("dev-1", models.Android), onlineDevice("dev-2", models.Android))
	android := &fakeAdapter{platform: models.Android}
	s, _ := newTestServer(t, reg, android, nil)

	for _, id := range []string{"dev-1", "dev-1", "dev-2"} {
		_, err := s.Reserve(t.Context(), id, "alice", 30, "")
		if err == nil {
			session, sessErr := s.StartSession(t.Context(), id, "alice")
			require.NoError(t, sessErr)
			require.NoError(t, s.EndSession(t.Context(), session.ID))
			require.NoError(t, s.reservations.Release(id))
		}
	}

	payload, _ := json.Marshal(models.TapPayload{X: 1, Y: 1})
	s.ExecuteCommand(t.Context(), "dev-1", &models.CommandRequest{Type: models.CommandTap, Payload: payload})

	usage := s.DeviceUsage()
	require.Len(t, usage, 2)
	assert.Equal(t, "dev-1", usage[0].DeviceID)
	assert.Equal(t, 2, usage[0].Sessions)

	summary := s.UsageSummary()
	assert.Equal(t, 3, summary.TotalSessions)
	assert.Equal(t, int64(1), summary.CommandsExecuted)
	require.NotNil(t, summary.BusiestDevice)
	assert.Equal(t, "dev-1", summary.BusiestDevice.DeviceID)

	hourly := s.HourlyUsage()
	require.NotEmpty(t, hourly)
	assert.Equal(t, 1, hourly[len(hourly)-1].Commands)
}
