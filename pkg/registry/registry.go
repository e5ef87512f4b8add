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
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
)

// legalTransitions is the full set of allowed status changes. The registry is
// the sole mutator of device status; anything not listed here is rejected.
var legalTransitions = map[models.DeviceStatus][]models.DeviceStatus{
	models.DeviceStatusOnline:       {models.DeviceStatusReserved, models.DeviceStatusOffline},
	models.DeviceStatusReserved:     {models.DeviceStatusInUse, models.DeviceStatusOnline, models.DeviceStatusOffline},
	models.DeviceStatusInUse:        {models.DeviceStatusReserved, models.DeviceStatusOnline, models.DeviceStatusOffline},
	models.DeviceStatusOffline:      {models.DeviceStatusOnline},
	models.DeviceStatusUnauthorized: {models.DeviceStatusOnline, models.DeviceStatusOffline},
}

// Registry is the canonical in-memory device store. All reads hand out
// clones; all status mutations go through the transition machine under the
// registry lock.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*models.Device
	bySerial map[string]string
	tails    map[string]adapters.StopFunc

	adapters  []adapters.Adapter
	sink      EventSink
	drivers   DriverStopper
	completer ReservationCompleter
	logger    logger.Logger
	now       func() time.Time
}

// New creates a device registry over the given adapters. The sink receives a
// broadcast after every mutation; drivers is asked to stop the driver server
// of any device that disappears.
func New(adapterList []adapters.Adapter, sink EventSink, drivers DriverStopper, log logger.Logger) *Registry {
	return &Registry{
		devices:  make(map[string]*models.Device),
		bySerial: make(map[string]string),
		tails:    make(map[string]adapters.StopFunc),
		adapters: adapterList,
		sink:     sink,
		drivers:  drivers,
		logger:   log,
		now:      time.Now,
	}
}

// SetReservationCompleter installs the callback invoked when a device goes
// offline. Set once during wiring, before the first discovery cycle; the
// reservation manager is constructed after the registry, so it cannot be a
// constructor argument.
func (r *Registry) SetReservationCompleter(completer ReservationCompleter) {
	r.completer = completer
}

// Get returns a snapshot of one device by synthetic id.
func (r *Registry) Get(id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	return device.Clone(), nil
}

// GetBySerial returns a snapshot of one device by vendor identifier.
func (r *Registry) GetBySerial(serial string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySerial[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %s", ErrDeviceNotFound, serial)
	}

	return r.devices[id].Clone(), nil
}

// List returns snapshots of every known device, offline ones included.
func (r *Registry) List() []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listLocked()
}

func (r *Registry) listLocked() []*models.Device {
	devices := make([]*models.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device.Clone())
	}

	return devices
}

// Counts breaks the registry population down by status.
func (r *Registry) Counts() models.DeviceCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := models.DeviceCounts{Total: len(r.devices)}

	for _, device := range r.devices {
		switch device.Status {
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

// Reserve transitions an online device to reserved and records the holder.
func (r *Registry) Reserve(id, userID string) (*models.Device, error) {
	snapshot, err := r.mutate(id, func(device *models.Device) error {
		if device.Status != models.DeviceStatusOnline {
			return fmt.Errorf("%w: device %s is %s", ErrDeviceNotAvailable, id, device.Status)
		}

		if err := r.transitionLocked(device, models.DeviceStatusReserved); err != nil {
			return err
		}

		now := r.now()
		device.ReservedBy = userID
		device.ReservedAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.sink.BroadcastDeviceUpdated(snapshot)

	return snapshot, nil
}

// Release clears the reservation hold and returns the device to the pool.
// Releasing a device that holds no reservation is not an error; an offline
// device stays offline but still loses its hold.
func (r *Registry) Release(id string) (*models.Device, error) {
	snapshot, err := r.mutate(id, func(device *models.Device) error {
		device.ReservedBy = ""
		device.ReservedAt = nil

		if device.Status == models.DeviceStatusReserved || device.Status == models.DeviceStatusInUse {
			return r.transitionLocked(device, models.DeviceStatusOnline)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.sink.BroadcastDeviceUpdated(snapshot)

	return snapshot, nil
}

// StartUse transitions a reserved device to in-use at session start.
func (r *Registry) StartUse(id string) (*models.Device, error) {
	snapshot, err := r.mutate(id, func(device *models.Device) error {
		return r.transitionLocked(device, models.DeviceStatusInUse)
	})
	if err != nil {
		return nil, err
	}

	r.sink.BroadcastDeviceUpdated(snapshot)

	return snapshot, nil
}

// EndUse ends a period of use. The device returns to reserved when a hold is
// still in place, otherwise to online. A device that went offline mid-session
// stays offline.
func (r *Registry) EndUse(id string) (*models.Device, error) {
	snapshot, err := r.mutate(id, func(device *models.Device) error {
		if device.Status == models.DeviceStatusOffline {
			return nil
		}

		target := models.DeviceStatusOnline
		if device.ReservedBy != "" {
			target = models.DeviceStatusReserved
		}

		if device.Status == target {
			return nil
		}

		return r.transitionLocked(device, target)
	})
	if err != nil {
		return nil, err
	}

	r.sink.BroadcastDeviceUpdated(snapshot)

	return snapshot, nil
}

// Stop terminates every log tail the registry owns.
func (r *Registry) Stop() {
	r.mu.Lock()
	tails := r.tails
	r.tails = make(map[string]adapters.StopFunc)
	r.mu.Unlock()

	for _, stop := range tails {
		stop()
	}
}

// mutate applies fn to the device under the registry lock and returns a
// post-mutation snapshot.
func (r *Registry) mutate(id string, fn func(*models.Device) error) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	if err := fn(device); err != nil {
		return nil, err
	}

	return device.Clone(), nil
}

// transitionLocked moves the device to the target status if the transition is
// legal. Caller holds the registry lock. Going offline always clears the
// reservation hold so the status/reservedBy invariant keeps holding.
func (r *Registry) transitionLocked(device *models.Device, to models.DeviceStatus) error {
	if device.Status == to {
		return nil
	}

	allowed := false

	for _, candidate := range legalTransitions[device.Status] {
		if candidate == to {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("%w: %s -> %s for device %s", ErrIllegalTransition, device.Status, to, device.ID)
	}

	from := device.Status
	device.Status = to

	if to == models.DeviceStatusOffline {
		device.ReservedBy = ""
		device.ReservedAt = nil
	}

	r.logger.Debug().
		Str("device_id", device.ID).
		Str("serial", device.Serial).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Device status transition")

	return nil
}
