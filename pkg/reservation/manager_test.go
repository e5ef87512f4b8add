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

package reservation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevices is an in-memory stand-in for the registry that mirrors its
// status gates.
type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newFakeDevices(ids ...string) *fakeDevices {
	f := &fakeDevices{devices: make(map[string]*models.Device)}

	for _, id := range ids {
		f.devices[id] = &models.Device{ID: id, Status: models.DeviceStatusOnline}
	}

	return f
}

func (f *fakeDevices) addOffline(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[id] = &models.Device{ID: id, Status: models.DeviceStatusOffline}
}

func (f *fakeDevices) setStatus(id string, status models.DeviceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := f.devices[id]
	d.Status = status

	if status == models.DeviceStatusOffline || status == models.DeviceStatusOnline {
		d.ReservedBy = ""
	}
}

func (f *fakeDevices) Get(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}

	return d.Clone(), nil
}

func (f *fakeDevices) GetBySerial(string) (*models.Device, error) {
	return nil, registry.ErrDeviceNotFound
}

func (f *fakeDevices) List() []*models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*models.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d.Clone())
	}

	return out
}

func (f *fakeDevices) Counts() models.DeviceCounts { return models.DeviceCounts{} }

func (f *fakeDevices) Discover(context.Context) []*models.Device { return f.List() }

func (f *fakeDevices) Reserve(id, userID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}

	if d.Status != models.DeviceStatusOnline {
		return nil, fmt.Errorf("%w: device %s is %s", registry.ErrDeviceNotAvailable, id, d.Status)
	}

	d.Status = models.DeviceStatusReserved
	d.ReservedBy = userID

	return d.Clone(), nil
}

func (f *fakeDevices) Release(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}

	d.ReservedBy = ""

	if d.Status == models.DeviceStatusReserved || d.Status == models.DeviceStatusInUse {
		d.Status = models.DeviceStatusOnline
	}

	return d.Clone(), nil
}

func (f *fakeDevices) StartUse(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}

	if d.Status != models.DeviceStatusReserved {
		return nil, fmt.Errorf("%w: %s -> in-use", registry.ErrIllegalTransition, d.Status)
	}

	d.Status = models.DeviceStatusInUse

	return d.Clone(), nil
}

func (f *fakeDevices) EndUse(id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.devices[id]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}

	if d.Status != models.DeviceStatusOffline {
		if d.ReservedBy != "" {
			d.Status = models.DeviceStatusReserved
		} else {
			d.Status = models.DeviceStatusOnline
		}
	}

	return d.Clone(), nil
}

func (f *fakeDevices) Stop() {}

func newFixture(t *testing.T) (*Manager, *fakeDevices) {
	t.Helper()

	devices := newFakeDevices("d1")

	return NewManager(devices, logger.NewTestLogger()), devices
}

func TestReserveAndReleaseRoundTrip(t *testing.T) {
	mgr, devices := newFixture(t)

	res, err := mgr.Reserve("d1", "alice", 2*time.Hour, "smoke tests")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusActive, res.Status)
	assert.Equal(t, "alice", res.UserID)
	assert.Equal(t, "smoke tests", res.Purpose)
	assert.WithinDuration(t, res.StartTime.Add(2*time.Hour), res.EndTime, time.Second)

	device, err := devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusReserved, device.Status)

	require.NoError(t, mgr.Release("d1"))

	device, err = devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.Empty(t, device.ReservedBy)

	completed := mgr.Reservations(ReservationFilter{DeviceID: "d1"})
	require.Len(t, completed, 1)
	assert.Equal(t, models.ReservationStatusCompleted, completed[0].Status)
}

func TestReserveDefaultsDuration(t *testing.T) {
	mgr, _ := newFixture(t)

	res, err := mgr.Reserve("d1", "alice", 0, "")
	require.NoError(t, err)
	assert.WithinDuration(t, res.StartTime.Add(time.Hour), res.EndTime, time.Second)
}

func TestReserveOfflineDeviceFails(t *testing.T) {
	mgr, devices := newFixture(t)
	devices.addOffline("d2")

	_, err := mgr.Reserve("d2", "alice", time.Hour, "")
	assert.ErrorIs(t, err, registry.ErrDeviceNotAvailable)
	assert.Empty(t, mgr.Reservations(ReservationFilter{DeviceID: "d2"}))
}

func TestAtMostOneActiveReservation(t *testing.T) {
	mgr, _ := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	_, err = mgr.Reserve("d1", "bob", time.Hour, "")
	require.ErrorIs(t, err, registry.ErrDeviceNotAvailable)

	active := mgr.Reservations(ReservationFilter{DeviceID: "d1", Status: models.ReservationStatusActive})
	assert.Len(t, active, 1)
}

func TestReleaseWithoutReservationIsNotAnError(t *testing.T) {
	mgr, devices := newFixture(t)

	require.NoError(t, mgr.Release("d1"))

	device, err := devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
}

func TestSessionLifecycle(t *testing.T) {
	mgr, devices := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)

	device, err := devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusInUse, device.Status)

	// Ending while the hold is still in place returns to reserved.
	require.NoError(t, mgr.EndSession(session.ID))

	device, err = devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusReserved, device.Status)

	got, err := mgr.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)
}

func TestEndSessionWithoutHoldReturnsOnline(t *testing.T) {
	mgr, devices := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)

	// Release the hold mid-session; the session stays active.
	require.NoError(t, mgr.Release("d1"))

	got, err := mgr.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, got.Status)

	require.NoError(t, mgr.EndSession(session.ID))

	device, err := devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
}

func TestCreateSessionRequiresReservedDevice(t *testing.T) {
	mgr, _ := newFixture(t)

	_, err := mgr.CreateSession("d1", "alice")
	assert.ErrorIs(t, err, registry.ErrIllegalTransition)
}

func TestEndSessionErrors(t *testing.T) {
	mgr, _ := newFixture(t)

	assert.ErrorIs(t, mgr.EndSession("nope"), ErrSessionNotFound)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)

	require.NoError(t, mgr.EndSession(session.ID))
	assert.ErrorIs(t, mgr.EndSession(session.ID), ErrSessionNotActive)
}

func TestFailActiveSession(t *testing.T) {
	mgr, _ := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)

	mgr.FailActiveSession("d1")

	got, err := mgr.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)
	assert.NotNil(t, got.EndTime)
}

func TestDeviceOfflineClosesRecordsSoReappearanceStartsClean(t *testing.T) {
	mgr, devices := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)

	// The device vanishes: the registry moves it offline and clears the
	// hold, then notifies the manager.
	devices.setStatus("d1", models.DeviceStatusOffline)
	mgr.DeviceOffline("d1")

	got, err := mgr.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)

	active := mgr.Reservations(ReservationFilter{DeviceID: "d1", Status: models.ReservationStatusActive})
	assert.Empty(t, active)

	// The device reappears; a new reservation succeeds and is the only
	// active one.
	devices.setStatus("d1", models.DeviceStatusOnline)

	_, err = mgr.Reserve("d1", "bob", time.Hour, "")
	require.NoError(t, err)

	active = mgr.Reservations(ReservationFilter{DeviceID: "d1", Status: models.ReservationStatusActive})
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].UserID)
}

func TestReapExpired(t *testing.T) {
	mgr, devices := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	// Nothing expired yet.
	assert.Zero(t, mgr.ReapExpired())

	// Move the manager clock past the deadline.
	mgr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	assert.Equal(t, 1, mgr.ReapExpired())

	device, err := devices.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
}

func TestSessionQueries(t *testing.T) {
	mgr, _ := newFixture(t)

	_, err := mgr.Reserve("d1", "alice", time.Hour, "")
	require.NoError(t, err)

	session, err := mgr.CreateSession("d1", "alice")
	require.NoError(t, err)

	assert.Len(t, mgr.Sessions(), 1)
	assert.Len(t, mgr.SessionsForDevice("d1"), 1)
	assert.Len(t, mgr.SessionsForUser("alice"), 1)
	assert.Empty(t, mgr.SessionsForUser("bob"))

	active, ok := mgr.ActiveSessionForDevice("d1")
	require.True(t, ok)
	assert.Equal(t, session.ID, active.ID)

	activeRes, okRes := mgr.ActiveReservationForDevice("d1")
	require.True(t, okRes)
	assert.Equal(t, "alice", activeRes.UserID)

	total, activeReservations, totalSessions, activeSessions := mgr.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, activeReservations)
	assert.Equal(t, 1, totalSessions)
	assert.Equal(t, 1, activeSessions)
}
