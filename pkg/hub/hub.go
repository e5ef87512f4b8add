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

package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/common"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxRetainedLogs bounds the device-log replay buffer, newest first.
const maxRetainedLogs = 1000

// Hub fans events out to websocket subscribers and routes their control
// messages into the Handler.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	pumps       map[string]*mirrorPump
	closed      bool

	logMu        sync.Mutex
	retainedLogs []models.Event

	handler  Handler
	upgrader websocket.Upgrader
	logger   logger.Logger

	// baseCtx parents every mirror pump so Close stops them all.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a hub. Allowed origins come from the CORS configuration; an
// empty allow-list accepts any origin.
func New(handler Handler, cors models.CORSConfig, log logger.Logger) *Hub {
	baseCtx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		subscribers: make(map[string]*Subscriber),
		pumps:       make(map[string]*mirrorPump),
		handler:     handler,
		logger:      log,
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), cors.AllowedOrigins)
		},
	}

	return h
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}

	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}

	return false
}

// ServeWS upgrades the request and runs the subscriber until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sub := newSubscriber(uuid.New().String(), conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()

		return
	}

	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", sub.id).
		Str("remote_addr", r.RemoteAddr).
		Msg("Realtime subscriber connected")

	go sub.writePump()

	// Every new subscriber starts from the current device snapshot plus the
	// retained device-log tail.
	sub.trySend(models.Event{
		Type:      models.EventDeviceList,
		Timestamp: time.Now(),
		Data:      h.handler.ListDevices(),
	})

	for _, event := range h.retainedLogTail() {
		sub.trySend(event)
	}

	h.readLoop(r.Context(), sub)
	h.disconnect(sub)
}

// readLoop processes inbound messages in receive order until the connection
// drops.
func (h *Hub) readLoop(ctx context.Context, sub *Subscriber) {
	for {
		var msg models.ClientMessage

		if err := sub.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client_id", sub.id).Msg("Subscriber read error")
			}

			return
		}

		h.route(ctx, sub, &msg)
	}
}

// route dispatches one inbound control message.
func (h *Hub) route(ctx context.Context, sub *Subscriber, msg *models.ClientMessage) {
	ctx = common.WithClientID(ctx, sub.id)
	if msg.UserID != "" {
		ctx = common.WithUserID(ctx, msg.UserID)
	}

	switch msg.Type {
	case models.ClientReserve:
		if _, err := h.handler.Reserve(ctx, msg.DeviceID, msg.UserID, msg.Duration, msg.Purpose); err != nil {
			h.sendError(sub, "", err)
		}
	case models.ClientRelease:
		if err := h.handler.Release(ctx, msg.DeviceID); err != nil {
			h.sendError(sub, "", err)
		}
	case models.ClientStartSession:
		if _, err := h.handler.StartSession(ctx, msg.DeviceID, msg.UserID); err != nil {
			h.sendError(sub, "", err)
		}
	case models.ClientEndSession:
		if err := h.handler.EndSession(ctx, msg.SessionID); err != nil {
			h.sendError(sub, "", err)
		}
	case models.ClientCommand:
		h.dispatchCommand(ctx, sub, msg)
	case models.ClientRefreshDevices:
		h.handler.RefreshDevices(ctx)
	case models.ClientStartMirror:
		h.startMirror(sub, msg.DeviceID, msg.FPS)
	case models.ClientStopMirror:
		h.stopMirror(sub, msg.DeviceID)
	default:
		h.sendError(sub, "", errUnknownMessage(msg.Type))
	}
}

// dispatchCommand runs a control command and replies to the originating
// subscriber only.
func (h *Hub) dispatchCommand(ctx context.Context, sub *Subscriber, msg *models.ClientMessage) {
	if msg.Command == nil {
		h.sendError(sub, "", errMissingCommand)
		return
	}

	cmd := h.handler.ExecuteCommand(ctx, msg.DeviceID, msg.Command)

	result := models.CommandResult{
		CommandID: cmd.ID,
		Success:   cmd.Status == models.CommandStatusCompleted,
		Result:    cmd.Result,
		Error:     cmd.Error,
	}

	sub.trySend(models.Event{
		Type:      models.EventCommandResult,
		Timestamp: time.Now(),
		CommandID: cmd.ID,
		Data:      result,
		Error:     cmd.Error,
	})
}

// startMirror binds the subscriber to a device's mirror pump. A subscriber
// mirrors at most one device: re-starting on the same device confirms and
// reuses the pump; a different device stops the old binding first.
func (h *Hub) startMirror(sub *Subscriber, deviceID string, fps int) {
	if deviceID == "" {
		h.sendError(sub, "", errMissingDevice)
		return
	}

	if current := sub.mirrorTarget(); current == deviceID {
		return
	} else if current != "" {
		h.stopMirror(sub, current)
	}

	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return
	}

	pump, ok := h.pumps[deviceID]
	if !ok {
		pump = newMirrorPump(deviceID, fps, h.handler, h.logger, h.removePump)
		h.pumps[deviceID] = pump

		pump.start(h.baseCtx)
	}
	h.mu.Unlock()

	pump.addSink(sub.id, func(event models.Event) {
		sub.trySend(event)
	})

	sub.setMirrorTarget(deviceID)

	h.logger.Debug().
		Str("client_id", sub.id).
		Str("device_id", deviceID).
		Msg("Mirror started")
}

// stopMirror releases the subscriber's binding; the pump dies with its last
// sink. An empty deviceID stops whatever the subscriber is mirroring; a stop
// naming a device the subscriber is not mirroring is a no-op, so a
// misdirected stop cannot orphan the real binding.
func (h *Hub) stopMirror(sub *Subscriber, deviceID string) {
	current := sub.mirrorTarget()
	if current == "" {
		return
	}

	if deviceID != "" && deviceID != current {
		return
	}

	sub.setMirrorTarget("")

	h.mu.Lock()
	pump, ok := h.pumps[current]
	h.mu.Unlock()

	if !ok {
		return
	}

	if pump.removeSink(sub.id) == 0 {
		pump.stop()
	}
}

// removePump is the pump's onStop callback.
func (h *Hub) removePump(deviceID string) {
	h.mu.Lock()
	delete(h.pumps, deviceID)
	h.mu.Unlock()

	// Any subscriber still pointed at this device loses its binding.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if sub.mirrorTarget() == deviceID {
			sub.setMirrorTarget("")
		}
	}
}

// disconnect removes the subscriber and stops any mirror it held.
func (h *Hub) disconnect(sub *Subscriber) {
	h.stopMirror(sub, "")

	h.mu.Lock()
	delete(h.subscribers, sub.id)
	h.mu.Unlock()

	sub.close()

	h.logger.Info().Str("client_id", sub.id).Msg("Realtime subscriber disconnected")
}

// BroadcastDeviceUpdated pushes one device's post-mutation state to every
// subscriber.
func (h *Hub) BroadcastDeviceUpdated(device *models.Device) {
	h.broadcast(models.Event{
		Type:      models.EventDeviceUpdated,
		Timestamp: time.Now(),
		Data:      device,
	})
}

// BroadcastDeviceList pushes the full device snapshot to every subscriber.
func (h *Hub) BroadcastDeviceList(devices []*models.Device) {
	h.broadcast(models.Event{
		Type:      models.EventDeviceList,
		Timestamp: time.Now(),
		Data:      devices,
	})
}

// BroadcastDeviceLog pushes one device or system log entry and retains it
// for replay to new subscribers.
func (h *Hub) BroadcastDeviceLog(entry models.LogEntry) {
	event := models.Event{
		Type:      models.EventDeviceLog,
		Timestamp: time.Now(),
		Data:      entry,
	}

	h.retainLog(event)
	h.broadcast(event)
}

// BroadcastSystemHealth pushes the periodic health snapshot.
func (h *Hub) BroadcastSystemHealth(health *models.SystemHealth) {
	h.broadcast(models.Event{
		Type:      models.EventSystemHealth,
		Timestamp: time.Now(),
		Data:      health,
	})
}

func (h *Hub) broadcast(event models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if !sub.trySend(event) {
			h.logger.Debug().
				Str("client_id", sub.id).
				Str("event", string(event.Type)).
				Msg("Dropped event for slow subscriber")
		}
	}
}

func (h *Hub) sendError(sub *Subscriber, commandID string, err error) {
	sub.trySend(models.Event{
		Type:      models.EventError,
		Timestamp: time.Now(),
		CommandID: commandID,
		Error:     err.Error(),
	})
}

// retainLog keeps the newest maxRetainedLogs device-log events, newest
// first.
func (h *Hub) retainLog(event models.Event) {
	h.logMu.Lock()
	defer h.logMu.Unlock()

	h.retainedLogs = append([]models.Event{event}, h.retainedLogs...)

	if len(h.retainedLogs) > maxRetainedLogs {
		h.retainedLogs = h.retainedLogs[:maxRetainedLogs]
	}
}

// retainedLogTail snapshots the replay buffer in oldest-first order for
// sending to a new subscriber.
func (h *Hub) retainedLogTail() []models.Event {
	h.logMu.Lock()
	defer h.logMu.Unlock()

	out := make([]models.Event, len(h.retainedLogs))

	for i, event := range h.retainedLogs {
		out[len(out)-1-i] = event
	}

	return out
}

// SubscriberCount reports how many clients are connected.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers)
}

// Close stops every mirror pump and disconnects every subscriber.
func (h *Hub) Close() {
	h.cancelBase()

	h.mu.Lock()
	h.closed = true

	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}

	h.subscribers = make(map[string]*Subscriber)
	h.pumps = make(map[string]*mirrorPump)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
