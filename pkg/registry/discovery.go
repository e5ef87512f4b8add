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
	"strconv"
	"sync"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// observation is one device reported by an adapter enumeration pass.
type observation struct {
	serial     string
	platform   models.Platform
	deviceType models.DeviceType
	adapter    adapters.Adapter
}

// Discover runs one reconciliation cycle: enumerate both platforms in
// parallel, refresh or create records for observed devices, and mark devices
// that vanished as offline. An adapter that fails its enumeration is skipped
// for the whole cycle so its devices are not falsely marked offline; the next
// cycle retries. The post-cycle device list is broadcast and returned.
func (r *Registry) Discover(ctx context.Context) []*models.Device {
	observed, healthy := r.enumerate(ctx)

	r.reconcileObserved(ctx, observed)
	r.reconcileMissing(observed, healthy)

	devices := r.List()
	r.sink.BroadcastDeviceList(devices)

	return devices
}

// enumerate asks every adapter for its device list in parallel. It returns
// the merged observations keyed by serial plus the set of platforms whose
// adapter answered.
func (r *Registry) enumerate(ctx context.Context) (map[string]observation, map[models.Platform]bool) {
	var mu sync.Mutex

	observed := make(map[string]observation)
	healthy := make(map[models.Platform]bool)

	g, gctx := errgroup.WithContext(ctx)

	for _, adapter := range r.adapters {
		g.Go(func() error {
			discovered, err := adapter.Enumerate(gctx)
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("platform", string(adapter.Platform())).
					Msg("Device enumeration failed, keeping previous view for platform")

				return nil
			}

			mu.Lock()
			defer mu.Unlock()

			healthy[adapter.Platform()] = true

			for _, d := range discovered {
				observed[d.Serial] = observation{
					serial:     d.Serial,
					platform:   adapter.Platform(),
					deviceType: d.DeviceType,
					adapter:    adapter,
				}
			}

			return nil
		})
	}

	// Goroutines never return errors; Wait is just the join point.
	_ = g.Wait()

	return observed, healthy
}

// reconcileObserved refreshes records for every observed serial and creates
// records for serials the registry has never seen.
func (r *Registry) reconcileObserved(ctx context.Context, observed map[string]observation) {
	for serial, obs := range observed {
		if r.touchExisting(serial) {
			continue
		}

		device, err := r.enrich(ctx, obs)
		if err != nil {
			// Skip this cycle; the device stays unknown and is retried on
			// the next pass.
			r.logger.Warn().
				Err(err).
				Str("serial", serial).
				Str("platform", string(obs.platform)).
				Msg("Device enrichment failed, skipping this cycle")

			continue
		}

		r.insert(ctx, device, obs.adapter)
	}
}

// touchExisting updates lastSeen for a known serial, promoting offline
// records back to online. Reserved and in-use statuses are never overwritten
// by discovery. Returns false when the serial is unknown.
func (r *Registry) touchExisting(serial string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySerial[serial]
	if !ok {
		return false
	}

	device := r.devices[id]
	device.LastSeen = r.now()

	if device.Status == models.DeviceStatusOffline {
		if err := r.transitionLocked(device, models.DeviceStatusOnline); err != nil {
			r.logger.Error().Err(err).Str("device_id", id).Msg("Failed to promote reappeared device")
		}
	}

	return true
}

// enrich builds a fresh device record by querying the adapter. It runs
// without the registry lock; only the final insert takes it.
func (r *Registry) enrich(ctx context.Context, obs observation) (*models.Device, error) {
	props, err := obs.adapter.GetProperties(ctx, obs.serial)
	if err != nil {
		return nil, err
	}

	battery, err := obs.adapter.GetBattery(ctx, obs.serial)
	if err != nil {
		r.logger.Debug().Err(err).Str("serial", obs.serial).Msg("Battery read failed, defaulting to 0")

		battery = 0
	}

	resolution, err := obs.adapter.GetResolution(ctx, obs.serial)
	if err != nil {
		r.logger.Debug().Err(err).Str("serial", obs.serial).Msg("Resolution read failed")
	}

	orientation, err := obs.adapter.GetOrientation(ctx, obs.serial)
	if err != nil || orientation == "" {
		orientation = models.OrientationPortrait
	}

	now := r.now()

	device := &models.Device{
		ID:           uuid.New().String(),
		Serial:       obs.serial,
		Platform:     obs.platform,
		DeviceType:   obs.deviceType,
		Status:       models.DeviceStatusOnline,
		BatteryLevel: battery,
		Resolution:   resolution,
		Orientation:  orientation,
		Properties:   props,
		ConnectedAt:  now,
		LastSeen:     now,
	}

	describeDevice(device, props)

	return device, nil
}

// insert adds a newly enriched record and starts its log tail when the
// platform supports one.
func (r *Registry) insert(ctx context.Context, device *models.Device, adapter adapters.Adapter) {
	r.mu.Lock()

	if _, exists := r.bySerial[device.Serial]; exists {
		// A concurrent refresh beat us to it.
		r.mu.Unlock()
		return
	}

	r.devices[device.ID] = device
	r.bySerial[device.Serial] = device.ID
	r.mu.Unlock()

	r.logger.Info().
		Str("device_id", device.ID).
		Str("serial", device.Serial).
		Str("platform", string(device.Platform)).
		Str("name", device.Name).
		Msg("Discovered new device")

	r.startTail(ctx, device, adapter)
}

// reconcileMissing marks devices that vanished from a healthy platform's
// listing as offline, stopping their log tails and driver servers first.
func (r *Registry) reconcileMissing(observed map[string]observation, healthy map[models.Platform]bool) {
	r.mu.Lock()

	var gone []*models.Device

	for _, device := range r.devices {
		if device.Status == models.DeviceStatusOffline {
			continue
		}

		if !healthy[device.Platform] {
			continue
		}

		if _, present := observed[device.Serial]; present {
			continue
		}

		gone = append(gone, device)
	}

	r.mu.Unlock()

	for _, device := range gone {
		r.markOffline(device.ID)
	}
}

// markOffline transitions one device to offline after releasing the
// resources tied to its presence.
func (r *Registry) markOffline(id string) {
	r.stopTail(id)

	if r.drivers != nil {
		if err := r.drivers.Stop(id); err != nil {
			r.logger.Debug().Err(err).Str("device_id", id).Msg("No driver server to stop for vanished device")
		}
	}

	snapshot, err := r.mutate(id, func(device *models.Device) error {
		device.LastSeen = r.now()

		for _, adapter := range r.adapters {
			if adapter.Platform() != device.Platform {
				continue
			}

			if inv, ok := adapter.(adapters.CacheInvalidator); ok {
				inv.InvalidateDeviceCache(device.Serial)
			}
		}

		return r.transitionLocked(device, models.DeviceStatusOffline)
	})
	if err != nil {
		r.logger.Error().Err(err).Str("device_id", id).Msg("Failed to mark device offline")
		return
	}

	// The transition cleared the hold on the device record; the reservation
	// manager closes the matching reservation and session records so a
	// reappeared device starts with a clean slate.
	if r.completer != nil {
		r.completer.DeviceOffline(id)
	}

	r.logger.Info().
		Str("device_id", id).
		Str("serial", snapshot.Serial).
		Msg("Device went offline")

	r.sink.BroadcastDeviceUpdated(snapshot)
}

// startTail launches the per-device log tail for platforms that support it
// and wires each line into the hub as a device-log event.
func (r *Registry) startTail(ctx context.Context, device *models.Device, adapter adapters.Adapter) {
	deviceID := device.ID

	sink := func(entry models.LogEntry) {
		entry.DeviceID = deviceID
		r.sink.BroadcastDeviceLog(entry)
	}

	// The tail outlives the discovery cycle that started it; only the stop
	// function terminates it.
	stop, err := adapter.TailLogs(context.WithoutCancel(ctx), device.Serial, sink)
	if err != nil {
		// Not every platform streams logs; iOS reports unsupported here.
		r.logger.Debug().
			Err(err).
			Str("device_id", deviceID).
			Msg("Log tail not started")

		return
	}

	r.mu.Lock()
	r.tails[deviceID] = stop
	r.mu.Unlock()
}

// stopTail terminates the log tail for one device, if any.
func (r *Registry) stopTail(id string) {
	r.mu.Lock()
	stop, ok := r.tails[id]
	delete(r.tails, id)
	r.mu.Unlock()

	if ok {
		stop()
	}
}

// SeedMockDevices inserts synthetic offline records for demos. It is opt-in
// behind configuration and never touches the discovery path.
func (r *Registry) SeedMockDevices() {
	seeds := []*models.Device{
		{
			Serial: "mock-pixel-7", Platform: models.Android, DeviceType: models.DeviceTypePhysical,
			Name: "Pixel 7", Model: "Pixel 7", Manufacturer: "Google", PlatformVersion: "14",
			APILevel: 34, Resolution: models.Resolution{Width: 1080, Height: 2400},
		},
		{
			Serial: "mock-galaxy-s23", Platform: models.Android, DeviceType: models.DeviceTypePhysical,
			Name: "Galaxy S23", Model: "SM-S911B", Manufacturer: "Samsung", PlatformVersion: "14",
			APILevel: 34, Resolution: models.Resolution{Width: 1080, Height: 2340},
		},
		{
			Serial: "mock-iphone-15", Platform: models.IOS, DeviceType: models.DeviceTypePhysical,
			Name: "iPhone 15 Pro", Model: "iPhone16,1", Manufacturer: "Apple", PlatformVersion: "17.4",
			Resolution: models.Resolution{Width: 1179, Height: 2556},
		},
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, seed := range seeds {
		if _, exists := r.bySerial[seed.Serial]; exists {
			continue
		}

		seed.ID = uuid.New().String()
		seed.Status = models.DeviceStatusOffline
		seed.Orientation = models.OrientationPortrait
		seed.Capabilities = defaultCapabilities(seed.Platform, seed.DeviceType)
		seed.ConnectedAt = now
		seed.LastSeen = now

		r.devices[seed.ID] = seed
		r.bySerial[seed.Serial] = seed.ID
	}
}

// apiLevel parses ro.build.version.sdk; zero when absent.
func apiLevel(props map[string]string) int {
	level, err := strconv.Atoi(props["ro.build.version.sdk"])
	if err != nil {
		return 0
	}

	return level
}
