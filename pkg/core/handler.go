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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/devicelab/pkg/models"
)

// Reserve grants a reservation on an online device. Implements hub.Handler.
func (s *Server) Reserve(_ context.Context, deviceID, userID string, durationMinutes int, purpose string) (*models.Reservation, error) {
	return s.reservations.Reserve(deviceID, userID, time.Duration(durationMinutes)*time.Minute, purpose)
}

// Release tears down everything attached to the device: driver server,
// active session, and reservation, in that order, then returns the device to
// the pool. Implements hub.Handler.
func (s *Server) Release(_ context.Context, deviceID string) error {
	if _, ok := s.drivers.Get(deviceID); ok {
		if err := s.drivers.Stop(deviceID); err != nil {
			s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Driver stop during release failed")
		}
	}

	if session, ok := s.reservations.ActiveSessionForDevice(deviceID); ok {
		if err := s.reservations.EndSession(session.ID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Session end during release failed")
		}
	}

	return s.reservations.Release(deviceID)
}

// StartSession opens a session on a reserved device. Implements hub.Handler.
func (s *Server) StartSession(_ context.Context, deviceID, userID string) (*models.Session, error) {
	return s.reservations.CreateSession(deviceID, userID)
}

// EndSession completes a session. Implements hub.Handler.
func (s *Server) EndSession(_ context.Context, sessionID string) error {
	return s.reservations.EndSession(sessionID)
}

// RefreshDevices forces a discovery cycle. Implements hub.Handler.
func (s *Server) RefreshDevices(ctx context.Context) []*models.Device {
	return s.registry.Discover(ctx)
}

// ListDevices returns the current device snapshot. Implements hub.Handler.
func (s *Server) ListDevices() []*models.Device {
	return s.registry.List()
}

// CaptureScreen grabs one PNG frame from the device. Implements hub.Handler.
func (s *Server) CaptureScreen(ctx context.Context, deviceID string) ([]byte, error) {
	device, adapter, err := s.adapterFor(deviceID)
	if err != nil {
		return nil, err
	}

	return adapter.CaptureScreenshot(ctx, device.Serial)
}

// ExecuteCommand validates and runs a control command. The returned Command
// always carries the final status; the error channel is the Command itself.
// Implements hub.Handler.
func (s *Server) ExecuteCommand(ctx context.Context, deviceID string, req *models.CommandRequest) *models.Command {
	cmd := &models.Command{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Type:      req.Type,
		Timestamp: time.Now(),
		Status:    models.CommandStatusExecuting,
	}

	result, err := s.runCommand(ctx, deviceID, req, cmd)
	if err != nil {
		cmd.Status = models.CommandStatusFailed
		cmd.Error = err.Error()

		s.commandsFailed.Add(1)

		s.logger.Warn().
			Err(err).
			Str("device_id", deviceID).
			Str("command", string(req.Type)).
			Msg("Command failed")
	} else {
		cmd.Status = models.CommandStatusCompleted
		cmd.Result = result

		s.commandsExecuted.Add(1)
	}

	s.recordCommandHour(cmd.Timestamp)

	return cmd
}

// runCommand resolves the device and dispatches the typed payload onto the
// platform adapter. Unsupported (kind, platform) combinations fail before any
// adapter invocation.
func (s *Server) runCommand(ctx context.Context, deviceID string, req *models.CommandRequest, cmd *models.Command) (string, error) {
	device, adapter, err := s.adapterFor(deviceID)
	if err != nil {
		return "", err
	}

	if !adapter.Supports(req.Type) {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, req.Type, device.Platform)
	}

	payload, err := models.ParseCommandPayload(req.Type, req.Payload)
	if err != nil {
		return "", err
	}

	cmd.Payload = payload

	switch p := payload.(type) {
	case *models.TapPayload:
		return "", adapter.Tap(ctx, device.Serial, p.X, p.Y)
	case *models.SwipePayload:
		return "", adapter.Swipe(ctx, device.Serial, p.StartX, p.StartY, p.EndX, p.EndY, p.Duration)
	case *models.DragPayload:
		return "", adapter.Drag(ctx, device.Serial, p.StartX, p.StartY, p.EndX, p.EndY, p.Duration)
	case *models.KeyPayload:
		return "", adapter.KeyEvent(ctx, device.Serial, p.Keycode)
	case *models.TextPayload:
		return "", adapter.InputText(ctx, device.Serial, p.Text)
	case *models.InstallPayload:
		return "", adapter.InstallApp(ctx, device.Serial, p.AppPath)
	case *models.UninstallPayload:
		return "", adapter.UninstallApp(ctx, device.Serial, p.PackageName)
	case *models.ShellPayload:
		return adapter.ExecuteShell(ctx, device.Serial, p.Command)
	default:
		return "", fmt.Errorf("%w: %s", models.ErrUnknownCommandType, req.Type)
	}
}

// StartDriver launches the automation driver for a device that is reserved
// or in use, returning the driver record.
func (s *Server) StartDriver(ctx context.Context, deviceID string) (*models.DriverServer, error) {
	device, err := s.registry.Get(deviceID)
	if err != nil {
		return nil, err
	}

	if device.Status != models.DeviceStatusReserved && device.Status != models.DeviceStatusInUse {
		return nil, fmt.Errorf("%w: device is %s", ErrDriverNotReserved, device.Status)
	}

	if _, err := s.drivers.Start(ctx, device); err != nil {
		return nil, err
	}

	record, ok := s.drivers.Get(deviceID)
	if !ok {
		// The child exited between ready and this snapshot.
		return nil, fmt.Errorf("driver for device %s exited immediately", deviceID)
	}

	return record, nil
}

// AutoStartResult is the one-call provisioning response: reservation, driver
// endpoint, and session.
type AutoStartResult struct {
	Reservation  *models.Reservation       `json:"reservation"`
	Session      *models.Session           `json:"session"`
	Driver       *models.DriverServer      `json:"driver"`
	WebDriverURL string                    `json:"webDriverUrl"`
	Capabilities models.DriverCapabilities `json:"capabilities"`
}

// AutoStart reserves the device, starts its driver server, and opens a
// session in one call. Any step failing unwinds the steps before it.
func (s *Server) AutoStart(ctx context.Context, deviceID, userID string, durationMinutes int, purpose string) (*AutoStartResult, error) {
	res, err := s.Reserve(ctx, deviceID, userID, durationMinutes, purpose)
	if err != nil {
		return nil, err
	}

	driver, err := s.StartDriver(ctx, deviceID)
	if err != nil {
		if relErr := s.reservations.Release(deviceID); relErr != nil {
			s.logger.Warn().Err(relErr).Str("device_id", deviceID).Msg("Unwind release failed")
		}

		return nil, err
	}

	session, err := s.StartSession(ctx, deviceID, userID)
	if err != nil {
		_ = s.drivers.Stop(deviceID)

		if relErr := s.reservations.Release(deviceID); relErr != nil {
			s.logger.Warn().Err(relErr).Str("device_id", deviceID).Msg("Unwind release failed")
		}

		return nil, err
	}

	device, getErr := s.registry.Get(deviceID)
	if getErr != nil {
		device = &models.Device{ID: deviceID}
	}

	return &AutoStartResult{
		Reservation:  res,
		Session:      session,
		Driver:       driver,
		WebDriverURL: driver.WebDriverURL(""),
		Capabilities: driverCapabilities(device),
	}, nil
}

// driverCapabilities mirrors the blob the supervisor passes to the driver
// binary, for inclusion in provisioning responses.
func driverCapabilities(device *models.Device) models.DriverCapabilities {
	caps := models.DriverCapabilities{
		PlatformName:      "Android",
		PlatformVersion:   device.PlatformVersion,
		DeviceName:        device.Name,
		UDID:              device.Serial,
		AutomationName:    "UiAutomator2",
		NewCommandTimeout: 300,
		NoReset:           true,
	}

	if device.Platform == models.IOS {
		caps.PlatformName = "iOS"
		caps.AutomationName = "XCUITest"
	}

	return caps
}

// InstallApp installs an artifact the API layer has already staged on disk.
func (s *Server) InstallApp(ctx context.Context, deviceID, appPath string) error {
	device, adapter, err := s.adapterFor(deviceID)
	if err != nil {
		return err
	}

	return adapter.InstallApp(ctx, device.Serial, appPath)
}
