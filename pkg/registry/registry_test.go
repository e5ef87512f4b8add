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

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	platform  models.Platform
	serials   []string
	enumErr   error
	propsErr  error
	props     map[string]string
	battery   int
	tailable  bool
	tailStops int
	mu        sync.Mutex
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) Enumerate(context.Context) ([]adapters.DiscoveredDevice, error) {
	if f.enumErr != nil {
		return nil, f.enumErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]adapters.DiscoveredDevice, 0, len(f.serials))
	for _, s := range f.serials {
		out = append(out, adapters.DiscoveredDevice{Serial: s, DeviceType: models.DeviceTypePhysical})
	}

	return out, nil
}

func (f *fakeAdapter) setSerials(serials ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serials = serials
}

func (f *fakeAdapter) GetProperties(context.Context, string) (map[string]string, error) {
	if f.propsErr != nil {
		return nil, f.propsErr
	}

	if f.props != nil {
		return f.props, nil
	}

	return map[string]string{"ro.product.model": "Pixel 7", "ro.product.manufacturer": "Google"}, nil
}

func (f *fakeAdapter) GetBattery(context.Context, string) (int, error) { return f.battery, nil }

func (f *fakeAdapter) GetResolution(context.Context, string) (models.Resolution, error) {
	return models.Resolution{Width: 1080, Height: 2400}, nil
}

func (f *fakeAdapter) GetOrientation(context.Context, string) (models.Orientation, error) {
	return models.OrientationPortrait, nil
}

func (f *fakeAdapter) CaptureScreenshot(context.Context, string) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakeAdapter) Tap(context.Context, string, int, int) error { return nil }

func (f *fakeAdapter) Swipe(context.Context, string, int, int, int, int, int) error { return nil }

func (f *fakeAdapter) Drag(context.Context, string, int, int, int, int, int) error { return nil }

func (f *fakeAdapter) KeyEvent(context.Context, string, int) error { return nil }

func (f *fakeAdapter) InputText(context.Context, string, string) error { return nil }

func (f *fakeAdapter) InstallApp(context.Context, string, string) error { return nil }

func (f *fakeAdapter) UninstallApp(context.Context, string, string) error { return nil }

func (f *fakeAdapter) ExecuteShell(context.Context, string, string) (string, error) {
	return "", adapters.ErrUnsupportedOperation
}

func (f *fakeAdapter) TailLogs(context.Context, string, adapters.LogSink) (adapters.StopFunc, error) {
	if !f.tailable {
		return nil, adapters.ErrUnsupportedOperation
	}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tailStops++
	}, nil
}

func (f *fakeAdapter) Supports(models.CommandType) bool { return true }

type fakeSink struct {
	mu      sync.Mutex
	updated []*models.Device
	lists   int
	logs    []models.LogEntry
}

func (s *fakeSink) BroadcastDeviceUpdated(d *models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, d)
}

func (s *fakeSink) BroadcastDeviceList([]*models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
}

func (s *fakeSink) BroadcastDeviceLog(entry models.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

type fakeStopper struct {
	mu      sync.Mutex
	stopped []string
}

func (f *fakeStopper) Stop(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, deviceID)

	return nil
}

type fakeCompleter struct {
	mu        sync.Mutex
	completed []string
}

func (f *fakeCompleter) DeviceOffline(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, deviceID)
}

func newTestRegistry(t *testing.T, adapterList ...adapters.Adapter) (*Registry, *fakeSink, *fakeStopper) {
	t.Helper()

	sink := &fakeSink{}
	stopper := &fakeStopper{}
	reg := New(adapterList, sink, stopper, logger.NewTestLogger())

	return reg, sink, stopper
}

func TestDiscoverCreatesAndEnrichesDevices(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"emulator-5554"}, battery: 85, tailable: true}
	reg, sink, _ := newTestRegistry(t, android)

	devices := reg.Discover(context.Background())
	require.Len(t, devices, 1)

	d := devices[0]
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "emulator-5554", d.Serial)
	assert.Equal(t, models.DeviceStatusOnline, d.Status)
	assert.Equal(t, 85, d.BatteryLevel)
	assert.Equal(t, "Pixel 7", d.Name)
	assert.Equal(t, 1, sink.lists)
}

func TestDiscoverIsIdempotentExceptLastSeen(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"serial-1"}}
	reg, _, _ := newTestRegistry(t, android)

	first := reg.Discover(context.Background())
	require.Len(t, first, 1)

	time.Sleep(5 * time.Millisecond)

	second := reg.Discover(context.Background())
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Status, second[0].Status)
	assert.Equal(t, first[0].ConnectedAt, second[0].ConnectedAt)
	assert.True(t, second[0].LastSeen.After(first[0].LastSeen))
}

func TestDiscoverMarksVanishedDeviceOfflineAndStopsResources(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1", "d2"}, tailable: true}
	reg, _, stopper := newTestRegistry(t, android)

	reg.Discover(context.Background())

	android.setSerials("d1")
	devices := reg.Discover(context.Background())
	require.Len(t, devices, 2)

	d2, err := reg.GetBySerial("d2")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, d2.Status)
	assert.Equal(t, []string{d2.ID}, stopper.stopped)
	assert.Equal(t, 1, android.tailStops)

	// Reappearance promotes straight back to online.
	android.setSerials("d1", "d2")
	reg.Discover(context.Background())

	d2, err = reg.GetBySerial("d2")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, d2.Status)
}

func TestDiscoverDoesNotClobberReservedStatus(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)

	reg.Discover(context.Background())

	d1, err = reg.Get(d1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusReserved, d1.Status)
	assert.Equal(t, "alice", d1.ReservedBy)
}

func TestDiscoverSkipsPlatformWhoseAdapterFailed(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	android.enumErr = errors.New("adb not found")
	devices := reg.Discover(context.Background())
	require.Len(t, devices, 1)

	// The previous view survives a failed enumeration.
	assert.Equal(t, models.DeviceStatusOnline, devices[0].Status)
}

func TestDiscoverSkipsDeviceWhoseEnrichmentFailed(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}, propsErr: errors.New("device busy")}
	reg, _, _ := newTestRegistry(t, android)

	devices := reg.Discover(context.Background())
	assert.Empty(t, devices)

	// Retry on the next cycle once the device answers.
	android.propsErr = nil
	devices = reg.Discover(context.Background())
	assert.Len(t, devices, 1)
}

func TestReserveRequiresOnline(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)

	// Double reserve is rejected and mutates nothing.
	_, err = reg.Reserve(d1.ID, "bob")
	require.ErrorIs(t, err, ErrDeviceNotAvailable)

	got, err := reg.Get(d1.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ReservedBy)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	reserved, err := reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusReserved, reserved.Status)
	assert.NotNil(t, reserved.ReservedAt)

	released, err := reg.Release(d1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, released.Status)
	assert.Empty(t, released.ReservedBy)
	assert.Nil(t, released.ReservedAt)
}

func TestEndUseRoutesByReservation(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1", "d2"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	withHold, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(withHold.ID, "alice")
	require.NoError(t, err)

	_, err = reg.StartUse(withHold.ID)
	require.NoError(t, err)

	after, err := reg.EndUse(withHold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusReserved, after.Status)

	// A session whose hold was released mid-flight returns to online.
	noHold, err := reg.GetBySerial("d2")
	require.NoError(t, err)

	_, err = reg.Reserve(noHold.ID, "bob")
	require.NoError(t, err)

	_, err = reg.StartUse(noHold.ID)
	require.NoError(t, err)

	_, err = reg.Release(noHold.ID)
	require.NoError(t, err)

	after, err = reg.EndUse(noHold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, after.Status)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	// online -> in-use skips the reservation step and is illegal.
	_, err = reg.StartUse(d1.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestOfflineClearsReservationHold(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)

	android.setSerials()
	reg.Discover(context.Background())

	got, err := reg.Get(d1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, got.Status)
	assert.Empty(t, got.ReservedBy)
}

func TestOfflineNotifiesReservationCompleter(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	completer := &fakeCompleter{}
	reg.SetReservationCompleter(completer)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)

	android.setSerials()
	reg.Discover(context.Background())

	assert.Equal(t, []string{d1.ID}, completer.completed)

	// Reappearance does not re-fire the callback.
	android.setSerials("d1")
	reg.Discover(context.Background())

	assert.Equal(t, []string{d1.ID}, completer.completed)
}

func TestGetUnknownDevice(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = reg.GetBySerial("nope")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSeedMockDevicesAreOfflineAndUntouchedByDiscovery(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.SeedMockDevices()
	reg.SeedMockDevices() // idempotent

	devices := reg.Discover(context.Background())
	require.Len(t, devices, 4)

	counts := reg.Counts()
	assert.Equal(t, 3, counts.Offline)
	assert.Equal(t, 1, counts.Online)
}

func TestCounts(t *testing.T) {
	android := &fakeAdapter{platform: models.Android, serials: []string{"d1", "d2"}}
	reg, _, _ := newTestRegistry(t, android)

	reg.Discover(context.Background())

	d1, err := reg.GetBySerial("d1")
	require.NoError(t, err)

	_, err = reg.Reserve(d1.ID, "alice")
	require.NoError(t, err)

	counts := reg.Counts()
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Online)
	assert.Equal(t, 1, counts.Reserved)
}
