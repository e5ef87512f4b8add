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

// Package models defines the shared data model for the DeviceLab controller.
package models

import (
	"time"
)

// Platform identifies the mobile operating system of a device.
type Platform string

const (
	Android Platform = "android"
	IOS     Platform = "ios"
)

// DeviceType distinguishes physical hardware from simulators. It is only
// meaningful for iOS; Android devices are always reported as physical.
type DeviceType string

const (
	DeviceTypePhysical  DeviceType = "physical"
	DeviceTypeSimulator DeviceType = "simulator"
)

// DeviceStatus is the lifecycle state of a device in the registry.
type DeviceStatus string

const (
	DeviceStatusOnline       DeviceStatus = "online"
	DeviceStatusOffline      DeviceStatus = "offline"
	DeviceStatusUnauthorized DeviceStatus = "unauthorized"
	DeviceStatusReserved     DeviceStatus = "reserved"
	DeviceStatusInUse        DeviceStatus = "in-use"
)

// Orientation is the current screen orientation of a device.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Resolution is a device screen resolution in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceCapabilities enumerates hardware features reported by a device.
type DeviceCapabilities struct {
	Touchscreen   bool `json:"touchscreen"`
	Camera        bool `json:"camera"`
	WiFi          bool `json:"wifi"`
	Bluetooth     bool `json:"bluetooth"`
	GPS           bool `json:"gps"`
	NFC           bool `json:"nfc"`
	Fingerprint   bool `json:"fingerprint"`
	Accelerometer bool `json:"accelerometer"`
	Gyroscope     bool `json:"gyroscope"`
}

// Device is the canonical in-memory record for a handset or simulator that is
// connected to the lab or has been seen at least once. Records are created on
// first observation and never destroyed; a disconnected device remains visible
// with status offline until the process exits.
type Device struct {
	// ID is the synthetic stable identifier assigned at first discovery.
	ID string `json:"id"`
	// Serial is the vendor identifier: the debug-bridge serial for Android,
	// the UDID for iOS.
	Serial     string     `json:"serial"`
	Platform   Platform   `json:"platform"`
	DeviceType DeviceType `json:"deviceType"`

	Name            string             `json:"name"`
	Model           string             `json:"model"`
	Manufacturer    string             `json:"manufacturer"`
	PlatformVersion string             `json:"platformVersion"`
	APILevel        int                `json:"apiLevel,omitempty"`
	Resolution      Resolution         `json:"resolution"`
	Orientation     Orientation        `json:"orientation"`
	Capabilities    DeviceCapabilities `json:"capabilities"`
	Properties      map[string]string  `json:"properties,omitempty"`

	Status       DeviceStatus `json:"status"`
	BatteryLevel int          `json:"batteryLevel"`
	ReservedBy   string       `json:"reservedBy,omitempty"`
	ReservedAt   *time.Time   `json:"reservedAt,omitempty"`
	ConnectedAt  time.Time    `json:"connectedAt"`
	LastSeen     time.Time    `json:"lastSeen"`
}

// Available reports whether the device can accept a new reservation.
func (d *Device) Available() bool {
	return d.Status == DeviceStatusOnline
}

// Busy reports whether the device is held by a user.
func (d *Device) Busy() bool {
	return d.Status == DeviceStatusReserved || d.Status == DeviceStatusInUse
}

// Clone returns a deep copy of the device record so callers can hand out
// snapshots without exposing registry-internal state.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	dst := *d

	if d.ReservedAt != nil {
		reservedAt := *d.ReservedAt
		dst.ReservedAt = &reservedAt
	}

	if len(d.Properties) > 0 {
		props := make(map[string]string, len(d.Properties))
		for k, v := range d.Properties {
			props[k] = v
		}

		dst.Properties = props
	}

	return &dst
}
