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
	"sync"
	"time"

	"github.com/carverauto/devicelab/pkg/models"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 64
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
)

// Subscriber is one connected realtime client.
type Subscriber struct {
	id   string
	conn *websocket.Conn
	send chan models.Event

	mu       sync.Mutex
	mirrored string // device id currently mirrored, empty when none

	closeOnce sync.Once
	closed    chan struct{}
}

func newSubscriber(id string, conn *websocket.Conn) *Subscriber {
	return &Subscriber{
		id:     id,
		conn:   conn,
		send:   make(chan models.Event, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// ID returns the opaque client identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// trySend queues an event without blocking. A subscriber that cannot keep up
// loses events rather than stalling the broadcaster.
func (s *Subscriber) trySend(event models.Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

// close tears the connection down exactly once.
func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// mirrorTarget returns the device this subscriber is mirroring, if any.
func (s *Subscriber) mirrorTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mirrored
}

func (s *Subscriber) setMirrorTarget(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mirrored = deviceID
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. Runs until the subscriber closes.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				return
			}

			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			if err := s.conn.WriteJSON(event); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.closed:
			return
		}
	}
}
