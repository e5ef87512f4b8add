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

//go:generate mockgen -destination=mock_adapters.go -package=adapters github.com/carverauto/devicelab/pkg/adapters Adapter,CommandRunner

// Package adapters wraps the platform tooling (adb, simctl, the libimobiledevice
// suite, idb) behind a uniform capability surface so callers never branch on
// platform except at the adapter boundary.
package adapters

import (
	"context"

	"github.com/carverauto/devicelab/pkg/models"
)

// DiscoveredDevice is one entry from an adapter enumeration pass.
type DiscoveredDevice struct {
	Serial     string
	DeviceType models.DeviceType
}

// StopFunc terminates a streaming operation and releases its resources.
type StopFunc func()

// LogSink receives parsed device log lines from a tail.
type LogSink func(entry models.LogEntry)

// Adapter is the uniform device control surface for one platform.
type Adapter interface {
	// Platform reports which platform this adapter drives.
	Platform() models.Platform

	// Enumerate lists the vendor identifiers currently visible to the
	// platform tooling. A failure in one sub-source does not fail the call.
	Enumerate(ctx context.Context) ([]DiscoveredDevice, error)

	// GetProperties returns the raw property map for a device.
	GetProperties(ctx context.Context, serial string) (map[string]string, error)

	// GetBattery returns the battery level 0-100.
	GetBattery(ctx context.Context, serial string) (int, error)

	// GetResolution returns the screen resolution in pixels.
	GetResolution(ctx context.Context, serial string) (models.Resolution, error)

	// GetOrientation reports the current screen orientation.
	GetOrientation(ctx context.Context, serial string) (models.Orientation, error)

	// CaptureScreenshot returns a PNG of the current screen.
	CaptureScreenshot(ctx context.Context, serial string) ([]byte, error)

	// Tap injects a tap at pixel coordinates.
	Tap(ctx context.Context, serial string, x, y int) error

	// Swipe injects a swipe between pixel coordinates over duration
	// milliseconds; zero duration uses the platform default.
	Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error

	// Drag is a swipe stretched to at least twice the swipe duration.
	Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error

	// KeyEvent injects a hardware key press.
	KeyEvent(ctx context.Context, serial string, keycode int) error

	// InputText types text into the focused element.
	InputText(ctx context.Context, serial, text string) error

	// InstallApp installs the app at a local filesystem path the caller has
	// already prepared (unzipped for .app bundles).
	InstallApp(ctx context.Context, serial, appPath string) error

	// UninstallApp removes the app with the given package or bundle id.
	UninstallApp(ctx context.Context, serial, packageName string) error

	// ExecuteShell runs a shell command on the device (Android only).
	ExecuteShell(ctx context.Context, serial, command string) (string, error)

	// TailLogs streams device logs into sink until the stop function is
	// called (Android only).
	TailLogs(ctx context.Context, serial string, sink LogSink) (StopFunc, error)

	// Supports reports whether the command kind is implemented for this
	// platform.
	Supports(kind models.CommandType) bool
}

// CacheInvalidator is implemented by adapters that keep per-device caches
// (scale factors, device-type classification) which must be dropped when a
// device disappears.
type CacheInvalidator interface {
	InvalidateDeviceCache(serial string)
}

// CommandRunner abstracts subprocess execution so adapters can be tested
// without the platform tooling installed.
type CommandRunner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// CombinedOutput runs the command and returns stdout and stderr together.
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)

	// Stream launches the command and emits stdout lines on the returned
	// channel until the process exits or the stop function is called. The
	// channel is closed when the stream ends.
	Stream(ctx context.Context, name string, args ...string) (<-chan string, StopFunc, error)
}
