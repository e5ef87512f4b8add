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
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/devicelab/pkg/adapters"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/google/uuid"
)

// mirrorFPSCeiling is the hard frame-rate cap. Capture over subprocess
// tooling rarely sustains more than one frame per second, so one uniform
// conservative ceiling applies to every platform.
const mirrorFPSCeiling = 1

// maxConsecutiveCaptureFailures bounds how long a pump keeps retrying a
// device that fails captures without signalling exhaustion.
const maxConsecutiveCaptureFailures = 3

// frameSink delivers one outbound event to a mirroring subscriber.
type frameSink func(event models.Event)

// mirrorPump is the per-device paced capture loop. One pump serves every
// subscriber mirroring the device; the in-flight gate guarantees a single
// capture at a time and frames in capture order.
type mirrorPump struct {
	deviceID string
	interval time.Duration
	handler  Handler
	logger   logger.Logger

	inFlight atomic.Bool
	failures atomic.Int32

	mu    sync.Mutex
	sinks map[string]frameSink

	cancel context.CancelFunc
	onStop func(deviceID string)
}

func newMirrorPump(deviceID string, fps int, handler Handler, log logger.Logger, onStop func(string)) *mirrorPump {
	if fps <= 0 || fps > mirrorFPSCeiling {
		fps = mirrorFPSCeiling
	}

	return &mirrorPump{
		deviceID: deviceID,
		interval: time.Second / time.Duration(fps),
		handler:  handler,
		logger:   log,
		sinks:    make(map[string]frameSink),
		onStop:   onStop,
	}
}

// start launches the capture loop.
func (p *mirrorPump) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	go p.run(ctx)
}

// stop terminates the loop and unregisters the pump.
func (p *mirrorPump) stop() {
	if p.cancel != nil {
		p.cancel()
	}

	if p.onStop != nil {
		p.onStop(p.deviceID)
	}
}

// addSink registers a subscriber's delivery callback.
func (p *mirrorPump) addSink(subscriberID string, sink frameSink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sinks[subscriberID] = sink
}

// removeSink drops a subscriber's callback and reports how many remain.
func (p *mirrorPump) removeSink(subscriberID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sinks, subscriberID)

	return len(p.sinks)
}

func (p *mirrorPump) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Single in-flight discipline: a tick that lands while a
			// capture is pending is skipped outright.
			if !p.inFlight.CompareAndSwap(false, true) {
				continue
			}

			go p.captureOnce(ctx)
		}
	}
}

func (p *mirrorPump) captureOnce(ctx context.Context) {
	defer p.inFlight.Store(false)

	data, err := p.handler.CaptureScreen(ctx, p.deviceID)
	if err != nil {
		p.handleCaptureError(err)
		return
	}

	p.failures.Store(0)

	frame := models.ScreenFrame{
		ID:        uuid.New().String(),
		DeviceID:  p.deviceID,
		Timestamp: time.Now(),
		Payload:   base64.StdEncoding.EncodeToString(data),
		MimeType:  "image/png",
	}

	p.deliver(models.Event{
		Type:      models.EventScreenUpdate,
		Timestamp: frame.Timestamp,
		Data:      frame,
	})
}

// handleCaptureError sheds load: exhaustion signals from the adapter kill
// the pump immediately, anything else after a few consecutive misses.
func (p *mirrorPump) handleCaptureError(err error) {
	exhausted := errors.Is(err, adapters.ErrResourceExhausted) ||
		errors.Is(err, adapters.ErrScreenshotTimeout)

	failures := p.failures.Add(1)

	p.logger.Warn().
		Err(err).
		Str("device_id", p.deviceID).
		Bool("exhausted", exhausted).
		Msg("Mirror capture failed")

	if !exhausted && failures < maxConsecutiveCaptureFailures {
		return
	}

	p.deliver(models.Event{
		Type:      models.EventError,
		Timestamp: time.Now(),
		Error:     "screen mirror stopped: " + err.Error(),
	})

	p.stop()
}

func (p *mirrorPump) deliver(event models.Event) {
	p.mu.Lock()
	sinks := make([]frameSink, 0, len(p.sinks))

	for _, sink := range p.sinks {
		sinks = append(sinks, sink)
	}
	p.mu.Unlock()

	for _, sink := range sinks {
		sink(event)
	}
}
