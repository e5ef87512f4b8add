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
	"strings"

	"github.com/carverauto/devicelab/pkg/models"
)

// emulatorPlaceholders are ro.product.model values the Android emulator ships
// that make terrible display names.
var emulatorPlaceholders = map[string]bool{
	"Android SDK built for x86":    true,
	"Android SDK built for x86_64": true,
	"Android SDK built for arm64":  true,
	"sdk":                          true,
}

// describeDevice fills the descriptive fields of a freshly enriched record
// from its raw property map.
func describeDevice(device *models.Device, props map[string]string) {
	switch device.Platform {
	case models.Android:
		device.Model = props["ro.product.model"]
		device.Manufacturer = props["ro.product.manufacturer"]
		device.PlatformVersion = props["ro.build.version.release"]
		device.APILevel = apiLevel(props)
		device.Name = androidDeviceName(props)
	case models.IOS:
		device.Model = props["ProductType"]
		device.Manufacturer = "Apple"
		device.PlatformVersion = props["ProductVersion"]
		device.Name = props["DeviceName"]

		if device.Name == "" {
			device.Name = device.Model
		}

		if device.Name == "" {
			device.Name = "iOS Device"
		}
	}

	device.Capabilities = deriveCapabilities(device, props)
}

// androidDeviceName derives a display name from the property dump. AVDs are
// named after their image; physical devices prefer the marketed model name,
// falling back to manufacturer plus model when the model is an SDK
// placeholder.
func androidDeviceName(props map[string]string) string {
	if avd := props["ro.boot.qemu.avd_name"]; avd != "" {
		return strings.ReplaceAll(avd, "_", " ")
	}

	model := props["ro.product.model"]
	manufacturer := props["ro.product.manufacturer"]

	if model != "" && !strings.HasPrefix(model, "sdk_") && !emulatorPlaceholders[model] {
		return model
	}

	if strings.HasPrefix(model, "sdk_gphone") {
		release := props["ro.build.version.release"]
		if release != "" {
			return "Android Emulator (Android " + release + ")"
		}

		return "Android Emulator"
	}

	name := strings.TrimSpace(manufacturer + " " + model)
	if name == "" {
		return "Android Device"
	}

	return name
}

// deriveCapabilities infers hardware capability flags from the property map,
// defaulting by platform and device type where the dump carries no signal.
func deriveCapabilities(device *models.Device, props map[string]string) models.DeviceCapabilities {
	caps := defaultCapabilities(device.Platform, device.DeviceType)

	if device.Platform == models.Android {
		if props["ro.kernel.qemu"] == "1" || props["ro.boot.qemu"] == "1" {
			// Emulators have no NFC or fingerprint hardware.
			caps.NFC = false
			caps.Fingerprint = false
		}

		if _, ok := props["ro.hardware.nfc"]; ok {
			caps.NFC = true
		}

		if v, ok := props["ro.hardware.fingerprint"]; ok && v != "" {
			caps.Fingerprint = true
		}
	}

	return caps
}

// defaultCapabilities is the baseline capability set per platform and device
// type.
func defaultCapabilities(platform models.Platform, deviceType models.DeviceType) models.DeviceCapabilities {
	caps := models.DeviceCapabilities{
		Touchscreen:   true,
		Camera:        true,
		WiFi:          true,
		Bluetooth:     true,
		GPS:           true,
		Accelerometer: true,
		Gyroscope:     true,
	}

	if platform == models.IOS {
		caps.NFC = deviceType == models.DeviceTypePhysical
		caps.Fingerprint = deviceType == models.DeviceTypePhysical

		if deviceType == models.DeviceTypeSimulator {
			// Simulators render a fake camera feed and have no radios
			// beyond the host's network.
			caps.Camera = false
			caps.Bluetooth = false
			caps.GPS = false
		}
	}

	return caps
}
