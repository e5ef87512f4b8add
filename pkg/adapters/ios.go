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

package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
)

const (
	simulatorBatteryLevel = 100

	scaleCacheTTL = 5 * time.Minute

	// Retina displays wider than this are 3x; the rest are 2x.
	scaleWidthThreshold = 800

	defaultScale = 3.0

	simulatorUDIDLength = 36
	simulatorUDIDDashes = 4
)

// simctlListing mirrors the JSON shape of `xcrun simctl list devices --json`.
type simctlListing struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name                 string `json:"name"`
	UDID                 string `json:"udid"`
	State                string `json:"state"`
	IsAvailable          bool   `json:"isAvailable"`
	DeviceTypeIdentifier string `json:"deviceTypeIdentifier"`
}

type scaleEntry struct {
	scale     float64
	expiresAt time.Time
}

type dimsEntry struct {
	resolution models.Resolution
	expiresAt  time.Time
}

type deviceLabel struct {
	name  string
	model string
}

// IOSAdapter drives simulators through simctl and idb, and physical devices
// through the libimobiledevice suite. Screenshots come back in pixels while
// the point driver takes points, so a per-device scale cache converts
// between the two.
type IOSAdapter struct {
	runner CommandRunner
	logger logger.Logger

	mu          sync.Mutex
	deviceTypes map[string]models.DeviceType
	scales      map[string]scaleEntry
	dims        map[string]dimsEntry
	labels      map[string]deviceLabel
}

// NewIOSAdapter creates an adapter that shells out to the iOS tooling via
// runner.
func NewIOSAdapter(runner CommandRunner, log logger.Logger) *IOSAdapter {
	return &IOSAdapter{
		runner:      runner,
		logger:      log,
		deviceTypes: make(map[string]models.DeviceType),
		scales:      make(map[string]scaleEntry),
		dims:        make(map[string]dimsEntry),
		labels:      make(map[string]deviceLabel),
	}
}

// Platform reports models.IOS.
func (*IOSAdapter) Platform() models.Platform {
	return models.IOS
}

// Enumerate lists booted simulators plus attached physical devices. A failure
// in one sub-source degrades to the other; only both failing fails the call.
func (a *IOSAdapter) Enumerate(ctx context.Context) ([]DiscoveredDevice, error) {
	var devices []DiscoveredDevice

	simulators, simErr := a.listSimulators(ctx, true)
	if simErr != nil {
		a.logger.Warn().Err(simErr).Msg("Failed to list iOS simulators")
	} else {
		for _, sim := range simulators {
			a.rememberType(sim.UDID, models.DeviceTypeSimulator)

			devices = append(devices, DiscoveredDevice{
				Serial:     sim.UDID,
				DeviceType: models.DeviceTypeSimulator,
			})
		}
	}

	out, physErr := a.runner.Output(ctx, "idevice_id", "-l")
	if physErr != nil {
		// The device bridge is routinely absent on hosts without it.
		a.logger.Debug().Err(physErr).Msg("Failed to list physical iOS devices")
	} else {
		for _, line := range strings.Split(string(out), "\n") {
			udid := strings.TrimSpace(line)
			if udid == "" {
				continue
			}

			a.rememberType(udid, models.DeviceTypePhysical)

			devices = append(devices, DiscoveredDevice{
				Serial:     udid,
				DeviceType: models.DeviceTypePhysical,
			})
		}
	}

	if simErr != nil && physErr != nil {
		return nil, fmt.Errorf("failed to enumerate ios devices: %w", errors.Join(simErr, physErr))
	}

	return devices, nil
}

// GetProperties synthesizes a property map from the simulator listing, or
// parses the device-info tool's "key: value" output for physical devices.
func (a *IOSAdapter) GetProperties(ctx context.Context, serial string) (map[string]string, error) {
	if a.isSimulator(serial) {
		return a.simulatorProperties(ctx, serial)
	}

	out, err := a.runner.Output(ctx, "ideviceinfo", "-u", serial)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties for %s: %w", serial, err)
	}

	props := make(map[string]string)

	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	a.rememberLabel(serial, props["DeviceName"], props["ProductType"])

	return props, nil
}

func (a *IOSAdapter) simulatorProperties(ctx context.Context, serial string) (map[string]string, error) {
	listing, err := a.fetchListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties for %s: %w", serial, err)
	}

	for runtime, entries := range listing.Devices {
		for _, entry := range entries {
			if entry.UDID != serial {
				continue
			}

			props := map[string]string{
				"DeviceName":     entry.Name,
				"ProductType":    entry.DeviceTypeIdentifier,
				"ProductVersion": runtimeVersion(runtime),
				"SimulatorState": entry.State,
			}

			a.rememberLabel(serial, entry.Name, entry.DeviceTypeIdentifier)

			return props, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotListed, serial)
}

// GetBattery reports 100 for simulators and the physical device's
// BatteryCurrentCapacity otherwise.
func (a *IOSAdapter) GetBattery(ctx context.Context, serial string) (int, error) {
	if a.isSimulator(serial) {
		return simulatorBatteryLevel, nil
	}

	out, err := a.runner.Output(ctx, "ideviceinfo", "-u", serial,
		"-q", "com.apple.mobile.battery", "-k", "BatteryCurrentCapacity")
	if err != nil {
		return 0, fmt.Errorf("failed to read battery for %s: %w", serial, err)
	}

	level, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unparseable battery level for %s: %w", serial, err)
	}

	return level, nil
}

// GetResolution reads the pixel dimensions from a screenshot header. Captures
// refresh a short-lived cache so back-to-back geometry reads cost one capture.
func (a *IOSAdapter) GetResolution(ctx context.Context, serial string) (models.Resolution, error) {
	if res, ok := a.cachedDims(serial); ok {
		return res, nil
	}

	data, placeholder, err := a.capture(ctx, serial)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to read resolution for %s: %w", serial, err)
	}

	if placeholder {
		return models.Resolution{}, fmt.Errorf("failed to read resolution for %s: no capture method succeeded", serial)
	}

	width, height, err := pngDimensions(data)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to read resolution for %s: %w", serial, err)
	}

	return models.Resolution{Width: width, Height: height}, nil
}

// GetOrientation derives orientation from the screen geometry.
func (a *IOSAdapter) GetOrientation(ctx context.Context, serial string) (models.Orientation, error) {
	res, err := a.GetResolution(ctx, serial)
	if err != nil {
		return "", fmt.Errorf("failed to read orientation for %s: %w", serial, err)
	}

	if res.Width > res.Height {
		return models.OrientationLandscape, nil
	}

	return models.OrientationPortrait, nil
}

// CaptureScreenshot returns a PNG of the current screen. Physical devices
// fall through a chain of capture methods and, when all fail, a generated
// placeholder annotated with the device name and model.
func (a *IOSAdapter) CaptureScreenshot(ctx context.Context, serial string) ([]byte, error) {
	data, _, err := a.capture(ctx, serial)
	return data, err
}

// capture reports whether the returned image is a generated placeholder so
// internal callers do not poison the scale cache with synthetic dimensions.
func (a *IOSAdapter) capture(ctx context.Context, serial string) (data []byte, placeholder bool, err error) {
	captureCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	if a.isSimulator(serial) {
		data, err = a.screenshotViaTool(captureCtx, "xcrun", func(path string) []string {
			return []string{"simctl", "io", serial, "screenshot", path}
		})
	} else {
		data, placeholder, err = a.physicalScreenshot(captureCtx, serial)
	}

	if err != nil {
		if errors.Is(captureCtx.Err(), context.DeadlineExceeded) {
			return nil, false, fmt.Errorf("%w: device %s after %s", ErrScreenshotTimeout, serial, screenshotTimeout)
		}

		return nil, false, fmt.Errorf("failed to capture screenshot for %s: %w", serial, err)
	}

	if !placeholder {
		a.noteCapture(serial, data)
	}

	return data, placeholder, nil
}

// physicalScreenshot tries, in order: the device bridge's screenshot tool,
// the Python tooling, mounting the developer disk image and retrying the
// bridge tool, and the configurator utility. All failing, it returns a
// placeholder image, which is a non-error success.
func (a *IOSAdapter) physicalScreenshot(ctx context.Context, serial string) ([]byte, bool, error) {
	var attempts []error

	bridgeArgs := func(path string) []string {
		return []string{"-u", serial, path}
	}

	if data, err := a.screenshotViaTool(ctx, "idevicescreenshot", bridgeArgs); err == nil {
		return data, false, nil
	} else {
		attempts = append(attempts, err)
	}

	if data, err := a.screenshotViaTool(ctx, "pymobiledevice3", func(path string) []string {
		return []string{"developer", "dvt", "screenshot", path, "--udid", serial}
	}); err == nil {
		return data, false, nil
	} else {
		attempts = append(attempts, err)
	}

	// Screenshot services need the developer disk image mounted; mount and
	// retry the bridge tool once.
	if _, err := a.runner.CombinedOutput(ctx, "pymobiledevice3", "mounter", "auto-mount", "--udid", serial); err == nil {
		if data, err := a.screenshotViaTool(ctx, "idevicescreenshot", bridgeArgs); err == nil {
			return data, false, nil
		} else {
			attempts = append(attempts, err)
		}
	} else {
		attempts = append(attempts, err)
	}

	if data, err := a.screenshotViaTool(ctx, "cfgutil", func(path string) []string {
		return []string{"screenshot", path}
	}); err == nil {
		return data, false, nil
	} else {
		attempts = append(attempts, err)
	}

	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	a.logger.Warn().
		Str("serial", serial).
		Err(errors.Join(attempts...)).
		Msg("All screenshot methods failed, serving placeholder")

	label := a.labelFor(serial)

	data, err := placeholderPNG(label.name, label.model)
	if err != nil {
		return nil, false, err
	}

	return data, true, nil
}

// screenshotViaTool writes a capture to a temp file, verifies it is
// non-empty, and always unlinks the file.
func (a *IOSAdapter) screenshotViaTool(ctx context.Context, tool string, argv func(path string) []string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "devicelab-shot-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create screenshot temp file: %w", err)
	}

	path := tmp.Name()
	_ = tmp.Close()

	defer func() { _ = os.Remove(path) }()

	if out, err := a.runner.CombinedOutput(ctx, tool, argv(path)...); err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", tool, err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read capture: %w", tool, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", tool, ErrEmptyScreenshot)
	}

	return data, nil
}

// Tap converts pixel coordinates to points and sends them to the point
// driver. Simulators fall back to window-relative mouse synthesis when the
// driver is unavailable.
func (a *IOSAdapter) Tap(ctx context.Context, serial string, x, y int) error {
	scale := a.scaleFor(ctx, serial)
	px := int(float64(x) / scale)
	py := int(float64(y) / scale)

	_, err := a.runner.Output(ctx, "idb", "ui", "tap",
		strconv.Itoa(px), strconv.Itoa(py), "--udid", serial)
	if err == nil {
		return nil
	}

	if a.isSimulator(serial) {
		if fallbackErr := a.legacyTap(ctx, px, py); fallbackErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed to tap on %s: %w", serial, err)
}

// legacyTap synthesizes a mouse click relative to the front simulator window.
func (a *IOSAdapter) legacyTap(ctx context.Context, x, y int) error {
	out, err := a.runner.Output(ctx, "osascript", "-e",
		`tell application "System Events" to get position of front window of process "Simulator"`)
	if err != nil {
		return fmt.Errorf("failed to locate simulator window: %w", err)
	}

	parts := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(parts) != 2 {
		return fmt.Errorf("unparseable simulator window position %q", strings.TrimSpace(string(out)))
	}

	winX, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	winY, errY := strconv.Atoi(strings.TrimSpace(parts[1]))

	if errX != nil || errY != nil {
		return fmt.Errorf("unparseable simulator window position %q", strings.TrimSpace(string(out)))
	}

	// The click lands inside the content area below the title bar.
	const titleBarHeight = 28

	_, err = a.runner.Output(ctx, "osascript", "-e",
		fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`,
			winX+x, winY+titleBarHeight+y))
	if err != nil {
		return fmt.Errorf("failed to synthesize click: %w", err)
	}

	return nil
}

// Swipe sends a point-space swipe through the driver. Physical devices do
// not support synthesized swipes.
func (a *IOSAdapter) Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	if !a.isSimulator(serial) {
		return fmt.Errorf("%w: swipe on physical iOS device %s", ErrUnsupportedOperation, serial)
	}

	if durationMs <= 0 {
		durationMs = defaultSwipeDurationMs
	}

	scale := a.scaleFor(ctx, serial)

	_, err := a.runner.Output(ctx, "idb", "ui", "swipe",
		strconv.Itoa(int(float64(x1)/scale)), strconv.Itoa(int(float64(y1)/scale)),
		strconv.Itoa(int(float64(x2)/scale)), strconv.Itoa(int(float64(y2)/scale)),
		"--duration", fmt.Sprintf("%.2f", float64(durationMs)/1000.0),
		"--udid", serial)
	if err != nil {
		return fmt.Errorf("failed to swipe on %s: %w", serial, err)
	}

	return nil
}

// Drag is a swipe stretched to at least double the duration.
func (a *IOSAdapter) Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	if durationMs <= 0 {
		durationMs = defaultDragDurationMs
	} else {
		durationMs *= 2
	}

	return a.Swipe(ctx, serial, x1, y1, x2, y2, durationMs)
}

// KeyEvent sends a hardware key press to a simulator.
func (a *IOSAdapter) KeyEvent(ctx context.Context, serial string, keycode int) error {
	if !a.isSimulator(serial) {
		return fmt.Errorf("%w: key event on physical iOS device %s", ErrUnsupportedOperation, serial)
	}

	_, err := a.runner.Output(ctx, "idb", "ui", "key", strconv.Itoa(keycode), "--udid", serial)
	if err != nil {
		return fmt.Errorf("failed to send keycode %d to %s: %w", keycode, serial, err)
	}

	return nil
}

// InputText types text into a simulator's focused element.
func (a *IOSAdapter) InputText(ctx context.Context, serial, text string) error {
	if !a.isSimulator(serial) {
		return fmt.Errorf("%w: text input on physical iOS device %s", ErrUnsupportedOperation, serial)
	}

	_, err := a.runner.Output(ctx, "idb", "ui", "text", text, "--udid", serial)
	if err != nil {
		return fmt.Errorf("failed to input text on %s: %w", serial, err)
	}

	return nil
}

// InstallApp installs an unpacked .app bundle on simulators or an .ipa via
// the installer tool on physical devices.
func (a *IOSAdapter) InstallApp(ctx context.Context, serial, appPath string) error {
	var err error
	if a.isSimulator(serial) {
		_, err = a.runner.CombinedOutput(ctx, "xcrun", "simctl", "install", serial, appPath)
	} else {
		_, err = a.runner.CombinedOutput(ctx, "ideviceinstaller", "-u", serial, "-i", appPath)
	}

	if err != nil {
		return fmt.Errorf("failed to install %s on %s: %w", appPath, serial, err)
	}

	return nil
}

// UninstallApp removes an app by bundle id.
func (a *IOSAdapter) UninstallApp(ctx context.Context, serial, bundleID string) error {
	var err error
	if a.isSimulator(serial) {
		_, err = a.runner.CombinedOutput(ctx, "xcrun", "simctl", "uninstall", serial, bundleID)
	} else {
		_, err = a.runner.CombinedOutput(ctx, "ideviceinstaller", "-u", serial, "-U", bundleID)
	}

	if err != nil {
		return fmt.Errorf("failed to uninstall %s from %s: %w", bundleID, serial, err)
	}

	return nil
}

// ExecuteShell is not available on iOS.
func (*IOSAdapter) ExecuteShell(_ context.Context, serial, _ string) (string, error) {
	return "", fmt.Errorf("%w: shell commands are not supported for iOS device %s", ErrUnsupportedOperation, serial)
}

// TailLogs is not available on iOS.
func (*IOSAdapter) TailLogs(_ context.Context, serial string, _ LogSink) (StopFunc, error) {
	return nil, fmt.Errorf("%w: log tailing is not supported for iOS device %s", ErrUnsupportedOperation, serial)
}

// Supports reports false for shell, true otherwise.
func (*IOSAdapter) Supports(kind models.CommandType) bool {
	return kind != models.CommandShell
}

// InvalidateDeviceCache drops cached classification, scale, and geometry for
// a disappeared device.
func (a *IOSAdapter) InvalidateDeviceCache(serial string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.deviceTypes, serial)
	delete(a.scales, serial)
	delete(a.dims, serial)
	delete(a.labels, serial)
}

// scaleFor returns the cached pixel-to-point scale, probing a screenshot
// when the cache is cold. Detection failures fall back to 3x, cached for the
// same window so a missing tool is not probed every tap.
func (a *IOSAdapter) scaleFor(ctx context.Context, serial string) float64 {
	a.mu.Lock()
	entry, ok := a.scales[serial]
	a.mu.Unlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.scale
	}

	scale := defaultScale

	if data, placeholder, err := a.capture(ctx, serial); err == nil && !placeholder {
		if width, _, dimErr := pngDimensions(data); dimErr == nil {
			scale = scaleForWidth(width)
		}
	}

	a.mu.Lock()
	a.scales[serial] = scaleEntry{scale: scale, expiresAt: time.Now().Add(scaleCacheTTL)}
	a.mu.Unlock()

	return scale
}

func scaleForWidth(width int) float64 {
	if width > scaleWidthThreshold {
		return 3.0
	}

	return 2.0
}

// noteCapture refreshes the scale and geometry caches from a real capture.
func (a *IOSAdapter) noteCapture(serial string, data []byte) {
	width, height, err := pngDimensions(data)
	if err != nil {
		return
	}

	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.scales[serial] = scaleEntry{scale: scaleForWidth(width), expiresAt: now.Add(scaleCacheTTL)}
	a.dims[serial] = dimsEntry{
		resolution: models.Resolution{Width: width, Height: height},
		expiresAt:  now.Add(scaleCacheTTL),
	}
}

func (a *IOSAdapter) cachedDims(serial string) (models.Resolution, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.dims[serial]
	if !ok || time.Now().After(entry.expiresAt) {
		return models.Resolution{}, false
	}

	return entry.resolution, true
}

func (a *IOSAdapter) rememberType(serial string, deviceType models.DeviceType) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deviceTypes[serial] = deviceType
}

func (a *IOSAdapter) rememberLabel(serial, name, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.labels[serial] = deviceLabel{name: name, model: model}
}

func (a *IOSAdapter) labelFor(serial string) deviceLabel {
	a.mu.Lock()
	defer a.mu.Unlock()

	label := a.labels[serial]
	if label.name == "" {
		label.name = serial
	}

	if label.model == "" {
		label.model = "iOS device"
	}

	return label
}

// isSimulator consults the classification cache, falling back to the UDID
// shape: simulator UDIDs are 36-char UUIDs with four dashes.
func (a *IOSAdapter) isSimulator(serial string) bool {
	a.mu.Lock()
	deviceType, ok := a.deviceTypes[serial]
	a.mu.Unlock()

	if ok {
		return deviceType == models.DeviceTypeSimulator
	}

	isSim := len(serial) == simulatorUDIDLength && strings.Count(serial, "-") == simulatorUDIDDashes

	deviceType = models.DeviceTypePhysical
	if isSim {
		deviceType = models.DeviceTypeSimulator
	}

	a.rememberType(serial, deviceType)

	return isSim
}

func (a *IOSAdapter) listSimulators(ctx context.Context, bootedOnly bool) ([]simctlDevice, error) {
	listing, err := a.fetchListing(ctx)
	if err != nil {
		return nil, err
	}

	var result []simctlDevice

	for _, entries := range listing.Devices {
		for _, entry := range entries {
			if bootedOnly && entry.State != "Booted" {
				continue
			}

			result = append(result, entry)
		}
	}

	return result, nil
}

func (a *IOSAdapter) fetchListing(ctx context.Context) (*simctlListing, error) {
	out, err := a.runner.Output(ctx, "xcrun", "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, fmt.Errorf("failed to list simulators: %w", err)
	}

	var listing simctlListing
	if err := json.Unmarshal(out, &listing); err != nil {
		return nil, fmt.Errorf("unparseable simulator listing: %w", err)
	}

	return &listing, nil
}

// runtimeVersion turns "com.apple.CoreSimulator.SimRuntime.iOS-17-2" into
// "17.2".
func runtimeVersion(runtime string) string {
	idx := strings.LastIndex(runtime, ".")
	if idx >= 0 {
		runtime = runtime[idx+1:]
	}

	parts := strings.Split(runtime, "-")
	if len(parts) < 2 {
		return runtime
	}

	return strings.Join(parts[1:], ".")
}
