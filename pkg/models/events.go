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
	"time"
)

// EventType identifies an outbound realtime event pushed to subscribers.
type EventType string

const (
	EventDeviceUpdated EventType = "device-updated"
	EventDeviceList    EventType = "device-list"
	EventDeviceLog     EventType = "device-log"
	EventSystemHealth  EventType = "system-health"
	EventScreenUpdate  EventType = "screen-update"
	EventCommandResult EventType = "command-result"
	EventError         EventType = "error"
)

// Event is the outbound realtime message envelope. Every event carries a
// wall-clock timestamp taken when the event was emitted.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	CommandID string      `json:"commandId,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ClientMessageType identifies an inbound realtime control message.
type ClientMessageType string

const (
	ClientReserve        ClientMessageType = "reserve"
	ClientRelease        ClientMessageType = "release"
	ClientStartSession   ClientMessageType = "start-session"
	ClientEndSession     ClientMessageType = "end-session"
	ClientCommand        ClientMessageType = "command"
	ClientRefreshDevices ClientMessageType = "refresh-devices"
	ClientStartMirror    ClientMessageType = "start-mirror"
	ClientStopMirror     ClientMessageType = "stop-mirror"
)

// ClientMessage is one inbound control message from a realtime subscriber.
// Fields are populated per message kind; unused fields are ignored.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	DeviceID  string            `json:"deviceId,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	// Duration is the requested reservation length in minutes.
	Duration int    `json:"duration,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	// FPS is the requested mirror frame rate; the server caps it.
	FPS     int             `json:"fps,omitempty"`
	Command *CommandRequest `json:"command,omitempty"`
}

// CommandRequest is the untrusted wire form of a control command. The payload
// stays raw until the request boundary validates it against the command kind.
type CommandRequest struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandResult is the per-subscriber reply to a command message.
type CommandResult struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ScreenFrame is one captured still frame shipped to mirroring subscribers.
type ScreenFrame struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	// Payload is the base64-encoded PNG image.
	Payload  string `json:"payload"`
	MimeType string `json:"mimeType"`
}
