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
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) sink() frameSink {
	return func(event models.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.events = append(r.events, event)
	}
}

func (r *eventRecorder) snapshot() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.Event(nil), r.events...)
}

func (r *eventRecorder) countByType(t models.EventType) int {
	count := 0

	for _, event := range r.snapshot() {
		if event.Type == t {
			count++
		}
	}

	return count
}

func TestMirrorPumpCapsFrameRate(t *testing.T) {
	tests := []struct {
		name string
		fps  int
		want time.Duration
	}{
		{name: "zero defaults to ceiling", fps: 0, want: time.Second},
		{name: "negative defaults to ceiling", fps: -5, want: time.Second},
		{name: "over-ask clamped to ceiling", fps: 30, want: time.Second},
		{name: "ceiling honored", fps: 1, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pump := newMirrorPump("dev-1", tt.fps, &fakeHandler{}, logger.NewTestLogger(), nil)
			assert.Equal(t, tt.want, pump.interval)
		})
	}
}

func TestMirrorPumpDeliversFrames(t *testing.T) {
	handler := &fakeHandler{captureFn: func(string) ([]byte, error) {
		return []byte("frame"), nil
	}}

	stopped := make(chan string, 1)
	pump := newMirrorPump("dev-1", 1, handler, logger.NewTestLogger(), func(id string) { stopped <- id })
	pump.interval = 5 * time.Millisecond

	recorder := &eventRecorder{}
	pump.addSink("sub-1", recorder.sink())

	pump.start(t.Context())
	defer pump.stop()

	require.Eventually(t, func() bool {
		return recorder.countByType(models.EventScreenUpdate) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	frame, ok := recorder.snapshot()[0].Data.(models.ScreenFrame)
	require.True(t, ok)

	assert.Equal(t, "dev-1", frame.DeviceID)
	assert.Equal(t, "image/png", frame.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("frame")), frame.Payload)
}

func TestMirrorPumpSkipsTicksWhileCaptureInFlight(t *testing.T) {
	var captures atomic.Int32

	release := make(chan struct{})
	handler := &fakeHandler{captureFn: func(string) ([]byte, error) {
		captures.Add(1)
		<-release

		return []byte("frame"), nil
	}}

	pump := newMirrorPump("dev-1", 1, handler, logger.NewTestLogger(), nil)
	pump.interval = 5 * time.Millisecond

	recorder := &eventRecorder{}
	pump.addSink("sub-1", recorder.sink())

	pump.start(t.Context())
	defer pump.stop()

	// Many ticks elapse while the first capture blocks; none may start a
	// second capture.
	require.Eventually(t, func() bool { return captures.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), captures.Load())

	close(release)

	require.Eventually(t, func() bool { return captures.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestMirrorPumpStopsOnResourceExhaustion(t *testing.T) {
	handler := &fakeHandler{captureFn: func(serial string) ([]byte, error) {
		return nil, fmt.Errorf("%w: device %s", adapters.ErrResourceExhausted, serial)
	}}

	stopped := make(chan string, 1)
	pump := newMirrorPump("dev-1", 1, handler, logger.NewTestLogger(), func(id string) { stopped <- id })
	pump.interval = 5 * time.Millisecond

	recorder := &eventRecorder{}
	pump.addSink("sub-1", recorder.sink())

	pump.start(t.Context())

	select {
	case id := <-stopped:
		assert.Equal(t, "dev-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop on resource exhaustion")
	}

	// The single failure was enough; subscribers heard why.
	require.Eventually(t, func() bool {
		return recorder.countByType(models.EventError) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestMirrorPumpStopsAfterConsecutiveFailures(t *testing.T) {
	var captures atomic.Int32

	handler := &fakeHandler{captureFn: func(string) ([]byte, error) {
		captures.Add(1)

		return nil, fmt.Errorf("capture failed")
	}}

	stopped := make(chan string, 1)
	pump := newMirrorPump("dev-1", 1, handler, logger.NewTestLogger(), func(id string) { stopped <- id })
	pump.interval = 5 * time.Millisecond

	recorder := &eventRecorder{}
	pump.addSink("sub-1", recorder.sink())

	pump.start(t.Context())

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after repeated failures")
	}

	assert.GreaterOrEqual(t, captures.Load(), int32(maxConsecutiveCaptureFailures))
	assert.GreaterOrEqual(t, recorder.countByType(models.EventError), 1)
}

func TestMirrorPumpSuccessResetsFailureCount(t *testing.T) {
	var captures atomic.Int32

	handler := &fakeHandler{captureFn: func(string) ([]byte, error) {
		// Every other capture fails; the pump must never accumulate enough
		// consecutive misses to shut down.
		if captures.Add(1)%2 == 0 {
			return nil, fmt.Errorf("transient")
		}

		return []byte("frame"), nil
	}}

	stopped := make(chan string, 1)
	pump := newMirrorPump("dev-1", 1, handler, logger.NewTestLogger(), func(id string) { stopped <- id })
	pump.interval = 5 * time.Millisecond

	recorder := &eventRecorder{}
	pump.addSink("sub-1", recorder.sink())

	pump.start(t.Context())
	defer pump.stop()

	require.Eventually(t, func() bool { return captures.Load() >= 10 }, 2*time.Second, 5*time.Millisecond)

	select {
	case <-stopped:
		t.Fatal("pump stopped despite interleaved successes")
	default:
	}
}

func TestMirrorPumpSinkAccounting(t *testing.T) {
	pump := newMirrorPump("dev-1", 1, &fakeHandler{}, logger.NewTestLogger(), nil)

	pump.addSink("a", func(models.Event) {})
	pump.addSink("b", func(models.Event) {})

	assert.Equal(t, 1, pump.removeSink("a"))
	assert.Equal(t, 0, pump.removeSink("b"))
	assert.Equal(t, 0, pump.removeSink("missing"))
}
