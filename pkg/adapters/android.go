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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/google/uuid"
)

const (
	adbBinary = "adb"

	screenshotTimeout = 10 * time.Second

	defaultSwipeDurationMs = 500
	defaultDragDurationMs  = 1000
)

var (
	// getprop prints properties as "[key]: [value]".
	propLineRegex = regexp.MustCompile(`^\[([^\]]+)\]:\s*\[(.*)\]$`)

	// wm size prints "Physical size: 1080x2340" and optionally an
	// "Override size:" line that wins when present.
	wmSizeRegex = regexp.MustCompile(`size:\s*(\d+)x(\d+)`)

	batteryLevelRegex = regexp.MustCompile(`^\s*level:\s*(\d+)`)

	surfaceOrientationRegex = regexp.MustCompile(`SurfaceOrientation:\s*(\d)`)

	// logcat -v time: "06-12 10:51:13.424 D/MyTag  ( 1234): message"
	logcatLineRegex = regexp.MustCompile(`^(\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})\s+([VDIWEF])/(.*?)\s*\(\s*\d+\):\s?(.*)$`)
)

// AndroidAdapter drives devices through the Android debug bridge.
type AndroidAdapter struct {
	runner CommandRunner
	logger logger.Logger
}

// NewAndroidAdapter creates an adapter that shells out to adb via runner.
func NewAndroidAdapter(runner CommandRunner, log logger.Logger) *AndroidAdapter {
	return &AndroidAdapter{
		runner: runner,
		logger: log,
	}
}

// Platform reports models.Android.
func (*AndroidAdapter) Platform() models.Platform {
	return models.Android
}

// Enumerate lists serials from `adb devices -l`, excluding entries the bridge
// reports as offline or unauthorized.
func (a *AndroidAdapter) Enumerate(ctx context.Context) ([]DiscoveredDevice, error) {
	out, err := a.runner.Output(ctx, adbBinary, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to list android devices: %w", err)
	}

	var devices []DiscoveredDevice

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		serial, state := fields[0], fields[1]
		if state == "offline" || state == "unauthorized" {
			a.logger.Debug().
				Str("serial", serial).
				Str("state", state).
				Msg("Skipping device in non-usable adb state")

			continue
		}

		if state != "device" {
			continue
		}

		devices = append(devices, DiscoveredDevice{
			Serial:     serial,
			DeviceType: models.DeviceTypePhysical,
		})
	}

	return devices, nil
}

// GetProperties returns the full getprop dump parsed into a map.
func (a *AndroidAdapter) GetProperties(ctx context.Context, serial string) (map[string]string, error) {
	out, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "getprop")
	if err != nil {
		return nil, fmt.Errorf("failed to read properties for %s: %w", serial, err)
	}

	props := make(map[string]string)

	for _, line := range strings.Split(string(out), "\n") {
		if m := propLineRegex.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			props[m[1]] = m[2]
		}
	}

	return props, nil
}

// GetBattery parses "level: N" from the battery service dump.
func (a *AndroidAdapter) GetBattery(ctx context.Context, serial string) (int, error) {
	out, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "dumpsys", "battery")
	if err != nil {
		return 0, fmt.Errorf("failed to read battery for %s: %w", serial, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if m := batteryLevelRegex.FindStringSubmatch(line); m != nil {
			level, convErr := strconv.Atoi(m[1])
			if convErr != nil {
				continue
			}

			return level, nil
		}
	}

	return 0, fmt.Errorf("battery level not present in dump for %s", serial)
}

// GetResolution parses `wm size`. When an override size is reported it
// follows the physical line, so the last match wins.
func (a *AndroidAdapter) GetResolution(ctx context.Context, serial string) (models.Resolution, error) {
	out, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "wm", "size")
	if err != nil {
		return models.Resolution{}, fmt.Errorf("failed to read screen size for %s: %w", serial, err)
	}

	matches := wmSizeRegex.FindAllStringSubmatch(string(out), -1)
	if len(matches) == 0 {
		return models.Resolution{}, fmt.Errorf("no screen size reported for %s", serial)
	}

	last := matches[len(matches)-1]
	width, _ := strconv.Atoi(last[1])
	height, _ := strconv.Atoi(last[2])

	return models.Resolution{Width: width, Height: height}, nil
}

// GetOrientation reads the input dispatcher's surface orientation. Rotations
// 0 and 2 are portrait, 1 and 3 landscape. Defaults to portrait when the
// device does not report one.
func (a *AndroidAdapter) GetOrientation(ctx context.Context, serial string) (models.Orientation, error) {
	out, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "dumpsys", "input")
	if err != nil {
		return "", fmt.Errorf("failed to read orientation for %s: %w", serial, err)
	}

	if m := surfaceOrientationRegex.FindStringSubmatch(string(out)); m != nil {
		if m[1] == "1" || m[1] == "3" {
			return models.OrientationLandscape, nil
		}

		return models.OrientationPortrait, nil
	}

	return models.OrientationPortrait, nil
}

// CaptureScreenshot streams a PNG out of screencap with a 10 second bound.
// The framebuffer read occasionally exits non-zero with EAGAIN on stderr
// after writing a complete image; those captures are kept.
func (a *AndroidAdapter) CaptureScreenshot(ctx context.Context, serial string) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	out, err := a.runner.Output(captureCtx, adbBinary, "-s", serial, "exec-out", "screencap", "-p")
	if err != nil {
		if errors.Is(captureCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: device %s after %s", ErrScreenshotTimeout, serial, screenshotTimeout)
		}

		if isTransientCaptureError(err) {
			if len(out) > 0 && isPNG(out) {
				return out, nil
			}

			return nil, fmt.Errorf("%w: device %s", ErrResourceExhausted, serial)
		}

		return nil, fmt.Errorf("failed to capture screenshot for %s: %w", serial, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: device %s", ErrEmptyScreenshot, serial)
	}

	return out, nil
}

// Tap injects a tap at pixel coordinates.
func (a *AndroidAdapter) Tap(ctx context.Context, serial string, x, y int) error {
	_, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "input", "tap",
		strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return fmt.Errorf("failed to tap on %s: %w", serial, err)
	}

	return nil
}

// Swipe injects a swipe. Zero duration uses the 500 ms default.
func (a *AndroidAdapter) Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	if durationMs <= 0 {
		durationMs = defaultSwipeDurationMs
	}

	_, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(durationMs))
	if err != nil {
		return fmt.Errorf("failed to swipe on %s: %w", serial, err)
	}

	return nil
}

// Drag is a swipe stretched to at least double the duration, defaulting to
// 1000 ms.
func (a *AndroidAdapter) Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMs int) error {
	if durationMs <= 0 {
		durationMs = defaultDragDurationMs
	} else {
		durationMs *= 2
	}

	return a.Swipe(ctx, serial, x1, y1, x2, y2, durationMs)
}

// KeyEvent injects a key press by Android keycode.
func (a *AndroidAdapter) KeyEvent(ctx context.Context, serial string, keycode int) error {
	_, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "input", "keyevent",
		strconv.Itoa(keycode))
	if err != nil {
		return fmt.Errorf("failed to send keyevent %d to %s: %w", keycode, serial, err)
	}

	return nil
}

// InputText types text into the focused element. Spaces become %s and shell
// metacharacters are escaped per the input tool's rules.
func (a *AndroidAdapter) InputText(ctx context.Context, serial, text string) error {
	_, err := a.runner.Output(ctx, adbBinary, "-s", serial, "shell", "input", "text",
		escapeInputText(text))
	if err != nil {
		return fmt.Errorf("failed to input text on %s: %w", serial, err)
	}

	return nil
}

// InstallApp installs an APK with reinstall allowed. adb reports failures on
// stdout with exit 0, so the output is checked as well.
func (a *AndroidAdapter) InstallApp(ctx context.Context, serial, appPath string) error {
	out, err := a.runner.CombinedOutput(ctx, adbBinary, "-s", serial, "install", "-r", appPath)
	if err != nil {
		return fmt.Errorf("failed to install %s on %s: %w", appPath, serial, err)
	}

	if strings.Contains(string(out), "Failure") {
		return fmt.Errorf("failed to install %s on %s: %s", appPath, serial, firstLineContaining(string(out), "Failure"))
	}

	return nil
}

// UninstallApp removes a package.
func (a *AndroidAdapter) UninstallApp(ctx context.Context, serial, packageName string) error {
	out, err := a.runner.CombinedOutput(ctx, adbBinary, "-s", serial, "uninstall", packageName)
	if err != nil {
		return fmt.Errorf("failed to uninstall %s from %s: %w", packageName, serial, err)
	}

	if strings.Contains(string(out), "Failure") {
		return fmt.Errorf("failed to uninstall %s from %s: %s", packageName, serial, firstLineContaining(string(out), "Failure"))
	}

	return nil
}

// ExecuteShell runs an arbitrary shell command on the device.
func (a *AndroidAdapter) ExecuteShell(ctx context.Context, serial, command string) (string, error) {
	out, err := a.runner.CombinedOutput(ctx, adbBinary, "-s", serial, "shell", command)
	if err != nil {
		return string(out), fmt.Errorf("shell command failed on %s: %w", serial, err)
	}

	return string(out), nil
}

// TailLogs streams logcat lines into sink until the returned stop function is
// called.
func (a *AndroidAdapter) TailLogs(ctx context.Context, serial string, sink LogSink) (StopFunc, error) {
	lines, stop, err := a.runner.Stream(ctx, adbBinary, "-s", serial, "logcat", "-v", "time")
	if err != nil {
		return nil, fmt.Errorf("failed to tail logs for %s: %w", serial, err)
	}

	go func() {
		for line := range lines {
			entry := parseLogcatLine(serial, line)
			if entry.Message == "" {
				continue
			}

			sink(entry)
		}
	}()

	return stop, nil
}

// Supports reports true for every command kind; Android implements the full
// surface.
func (*AndroidAdapter) Supports(models.CommandType) bool {
	return true
}

func parseLogcatLine(serial, line string) models.LogEntry {
	entry := models.LogEntry{
		ID:        uuid.New().String(),
		DeviceID:  serial,
		Timestamp: time.Now(),
		Level:     models.LogLevelInfo,
		Message:   strings.TrimSpace(line),
	}

	m := logcatLineRegex.FindStringSubmatch(line)
	if m == nil {
		return entry
	}

	// logcat timestamps omit the year.
	if ts, err := time.ParseInLocation("01-02 15:04:05.000", m[1], time.Local); err == nil {
		entry.Timestamp = ts.AddDate(time.Now().Year(), 0, 0)
	}

	entry.Level = logcatLevel(m[2])
	entry.Tag = strings.TrimSpace(m[3])
	entry.Message = m[4]

	return entry
}

func logcatLevel(code string) models.LogLevel {
	switch code {
	case "V":
		return models.LogLevelVerbose
	case "D":
		return models.LogLevelDebug
	case "I":
		return models.LogLevelInfo
	case "W":
		return models.LogLevelWarn
	case "E":
		return models.LogLevelError
	case "F":
		return models.LogLevelFatal
	default:
		return models.LogLevelInfo
	}
}

var inputTextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"`", "\\`",
	`(`, `\(`,
	`)`, `\)`,
	`<`, `\<`,
	`>`, `\>`,
	`|`, `\|`,
	`;`, `\;`,
	`&`, `\&`,
	`*`, `\*`,
	`~`, `\~`,
	`$`, `\$`,
	` `, `%s`,
)

func escapeInputText(text string) string {
	return inputTextEscaper.Replace(text)
}

func isPNG(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

func isTransientCaptureError(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.Contains(strings.ToLower(string(exitErr.Stderr)), "resource temporarily unavailable")
	}

	return false
}

func firstLineContaining(s, substr string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			return strings.TrimSpace(line)
		}
	}

	return strings.TrimSpace(s)
}
