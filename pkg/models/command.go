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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CommandType identifies a remote-control operation.
type CommandType string

const (
	CommandTap       CommandType = "tap"
	CommandSwipe     CommandType = "swipe"
	CommandDrag      CommandType = "drag"
	CommandKey       CommandType = "key"
	CommandText      CommandType = "text"
	CommandInstall   CommandType = "install"
	CommandUninstall CommandType = "uninstall"
	CommandShell     CommandType = "shell"
)

// CommandStatus is the lifecycle state of a control request.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusExecuting CommandStatus = "executing"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
)

var (
	ErrUnknownCommandType = errors.New("unknown command type")
	ErrInvalidPayload     = errors.New("invalid command payload")
)

// CommandPayload is the typed payload carried by a Command. Each command kind
// has its own variant; unknown variants are rejected at the request boundary.
type CommandPayload interface {
	Validate() error
}

// Command is a transient record for one control request against a device.
type Command struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"deviceId"`
	Type      CommandType    `json:"type"`
	Payload   CommandPayload `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    CommandStatus  `json:"status"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// TapPayload taps a single point, in screen pixels.
type TapPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p *TapPayload) Validate() error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("%w: tap coordinates must be non-negative", ErrInvalidPayload)
	}

	return nil
}

// SwipePayload swipes between two points. Duration is in milliseconds and
// defaults at the adapter when zero.
type SwipePayload struct {
	StartX   int `json:"startX"`
	StartY   int `json:"startY"`
	EndX     int `json:"endX"`
	EndY     int `json:"endY"`
	Duration int `json:"duration,omitempty"`
}

func (p *SwipePayload) Validate() error {
	if p.StartX < 0 || p.StartY < 0 || p.EndX < 0 || p.EndY < 0 {
		return fmt.Errorf("%w: swipe coordinates must be non-negative", ErrInvalidPayload)
	}

	if p.Duration < 0 {
		return fmt.Errorf("%w: swipe duration must be non-negative", ErrInvalidPayload)
	}

	return nil
}

// DragPayload is a swipe with a longer default duration.
type DragPayload struct {
	StartX   int `json:"startX"`
	StartY   int `json:"startY"`
	EndX     int `json:"endX"`
	EndY     int `json:"endY"`
	Duration int `json:"duration,omitempty"`
}

func (p *DragPayload) Validate() error {
	if p.StartX < 0 || p.StartY < 0 || p.EndX < 0 || p.EndY < 0 {
		return fmt.Errorf("%w: drag coordinates must be non-negative", ErrInvalidPayload)
	}

	if p.Duration < 0 {
		return fmt.Errorf("%w: drag duration must be non-negative", ErrInvalidPayload)
	}

	return nil
}

// KeyPayload sends a platform key event by numeric keycode.
type KeyPayload struct {
	Keycode int `json:"keycode"`
}

func (p *KeyPayload) Validate() error {
	if p.Keycode < 0 {
		return fmt.Errorf("%w: keycode must be non-negative", ErrInvalidPayload)
	}

	return nil
}

// TextPayload types a string into the focused input.
type TextPayload struct {
	Text string `json:"text"`
}

func (p *TextPayload) Validate() error {
	if p.Text == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidPayload)
	}

	return nil
}

// InstallPayload installs an application artifact already staged on the
// controller's filesystem.
type InstallPayload struct {
	AppPath string `json:"appPath"`
}

func (p *InstallPayload) Validate() error {
	if p.AppPath == "" {
		return fmt.Errorf("%w: appPath must not be empty", ErrInvalidPayload)
	}

	return nil
}

// UninstallPayload removes an application by package name / bundle id.
type UninstallPayload struct {
	PackageName string `json:"packageName"`
}

func (p *UninstallPayload) Validate() error {
	if p.PackageName == "" {
		return fmt.Errorf("%w: packageName must not be empty", ErrInvalidPayload)
	}

	return nil
}

// ShellPayload runs a shell command on the device. Android only.
type ShellPayload struct {
	Command string `json:"command"`
}

func (p *ShellPayload) Validate() error {
	if p.Command == "" {
		return fmt.Errorf("%w: command must not be empty", ErrInvalidPayload)
	}

	return nil
}

// ParseCommandPayload decodes the raw JSON payload for the given command kind
// into its typed variant and validates it. Unknown kinds are rejected here so
// adapters never see them.
func ParseCommandPayload(kind CommandType, raw json.RawMessage) (CommandPayload, error) {
	var payload CommandPayload

	switch kind {
	case CommandTap:
		payload = &TapPayload{}
	case CommandSwipe:
		payload = &SwipePayload{}
	case CommandDrag:
		payload = &DragPayload{}
	case CommandKey:
		payload = &KeyPayload{}
	case CommandText:
		payload = &TextPayload{}
	case CommandInstall:
		payload = &InstallPayload{}
	case CommandUninstall:
		payload = &UninstallPayload{}
	case CommandShell:
		payload = &ShellPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommandType, kind)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return payload, nil
}
