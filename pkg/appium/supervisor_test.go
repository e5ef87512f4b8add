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

package appium

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess scripts a driver child for tests.
type fakeProcess struct {
	pid        int
	lines      chan string
	done       chan struct{}
	exitCode   int
	mu         sync.Mutex
	terminated bool
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		pid:   4242,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
}

func (p *fakeProcess) emit(line string) { p.lines <- line }

func (p *fakeProcess) exit(code int) {
	p.exitCode = code
	close(p.lines)
	close(p.done)
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Lines() <-chan string  { return p.lines }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitCode() int         { return p.exitCode }

func (p *fakeProcess) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
}

func (p *fakeProcess) Kill() { p.Terminate() }

func (p *fakeProcess) wasTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.terminated
}

// fakeLauncher hands out scripted processes and records launch arguments.
type fakeLauncher struct {
	mu        sync.Mutex
	processes []*fakeProcess
	args      [][]string
	launchErr error
}

func (l *fakeLauncher) Launch(_ context.Context, _ string, args ...string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.launchErr != nil {
		return nil, l.launchErr
	}

	proc := newFakeProcess()
	l.processes = append(l.processes, proc)
	l.args = append(l.args, args)

	return proc, nil
}

func (l *fakeLauncher) latest() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.processes) == 0 {
		return nil
	}

	return l.processes[len(l.processes)-1]
}

type logSink struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (s *logSink) BroadcastDeviceLog(entry models.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *logSink) systemMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string

	for _, e := range s.entries {
		if e.DeviceID == models.SystemLogSource {
			out = append(out, e.Message)
		}
	}

	return out
}

func testDevice() *models.Device {
	return &models.Device{
		ID:              "dev-1",
		Serial:          "emulator-5554",
		Platform:        models.Android,
		Name:            "Pixel 7",
		PlatformVersion: "14",
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeLauncher, *logSink) {
	t.Helper()

	launcher := &fakeLauncher{}
	sink := &logSink{}

	sup := NewSupervisor(Config{
		StartTimeout: 2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}, launcher, sink, logger.NewTestLogger())

	sup.ports.probe = func(int) bool { return true }
	sup.orphanKill = func(string) {}

	return sup, launcher, sink
}

// startRunning launches a driver and walks it to running.
func startRunning(t *testing.T, sup *Supervisor, launcher *fakeLauncher) (int, *fakeProcess) {
	t.Helper()

	portCh := make(chan int, 1)
	errCh := make(chan error, 1)

	go func() {
		port, err := sup.Start(context.Background(), testDevice())
		portCh <- port
		errCh <- err
	}()

	proc := waitForProcess(t, launcher)
	proc.emit("[Appium] Appium REST http interface listener started on 0.0.0.0:4723")

	port := <-portCh
	require.NoError(t, <-errCh)

	return port, proc
}

func waitForProcess(t *testing.T, launcher *fakeLauncher) *fakeProcess {
	t.Helper()

	deadline := time.Now().Add(time.Second)

	for time.Now().Before(deadline) {
		if proc := launcher.latest(); proc != nil {
			return proc
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("driver process never launched")

	return nil
}

func TestStartBecomesRunningOnSentinel(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	port, _ := startRunning(t, sup, launcher)
	assert.GreaterOrEqual(t, port, 4723)
	assert.Less(t, port, 4823)

	rec, ok := sup.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, models.DriverStatusRunning, rec.Status)
	assert.Equal(t, port, rec.Port)
	assert.Equal(t, 4242, rec.PID)
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	port, _ := startRunning(t, sup, launcher)

	again, err := sup.Start(context.Background(), testDevice())
	require.NoError(t, err)
	assert.Equal(t, port, again)
	assert.Len(t, launcher.processes, 1)
}

func TestStartPassesDefaultCapabilities(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	startRunning(t, sup, launcher)

	require.Len(t, launcher.args, 1)
	joined := strings.Join(launcher.args[0], " ")
	assert.Contains(t, joined, "--port 4723")
	assert.Contains(t, joined, "--session-override")
	assert.Contains(t, joined, `"platformName":"Android"`)
	assert.Contains(t, joined, `"appium:automationName":"UiAutomator2"`)
	assert.Contains(t, joined, `"appium:udid":"emulator-5554"`)
	assert.Contains(t, joined, `"appium:newCommandTimeout":300`)
	assert.Contains(t, joined, `"appium:noReset":true`)
}

func TestStartFailsWhenProcessExitsEarly(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	errCh := make(chan error, 1)

	go func() {
		_, err := sup.Start(context.Background(), testDevice())
		errCh <- err
	}()

	proc := waitForProcess(t, launcher)
	proc.emit("Error: something is badly wrong")
	proc.exit(1)

	assert.ErrorIs(t, <-errCh, ErrStartFailed)

	_, ok := sup.Get("dev-1")
	assert.False(t, ok)
}

func TestStartTimesOut(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)
	sup.cfg.StartTimeout = 50 * time.Millisecond

	errCh := make(chan error, 1)

	go func() {
		_, err := sup.Start(context.Background(), testDevice())
		errCh <- err
	}()

	proc := waitForProcess(t, launcher)

	assert.ErrorIs(t, <-errCh, ErrStartTimeout)
	assert.True(t, proc.wasTerminated())

	_, ok := sup.Get("dev-1")
	assert.False(t, ok)
}

func TestStopReleasesPort(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	port, proc := startRunning(t, sup, launcher)

	require.NoError(t, sup.Stop("dev-1"))
	assert.True(t, proc.wasTerminated())

	_, ok := sup.Get("dev-1")
	assert.False(t, ok)

	// The port is free for the next start.
	reallocated, err := sup.ports.allocate()
	require.NoError(t, err)
	assert.Equal(t, port, reallocated)
}

func TestStopWithoutServer(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	assert.ErrorIs(t, sup.Stop("nope"), ErrNoServer)
}

func TestExitRemovesRecordAndReportsStatus(t *testing.T) {
	sup, launcher, sink := newTestSupervisor(t)

	_, proc := startRunning(t, sup, launcher)
	proc.exit(1)

	require.Eventually(t, func() bool {
		_, ok := sup.Get("dev-1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, msg := range sink.systemMessages() {
			if strings.Contains(msg, "exited (error)") {
				return true
			}
		}

		return false
	}, time.Second, 5*time.Millisecond)
}

func TestLogsAreFilteredAndCapped(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	_, proc := startRunning(t, sup, launcher)

	proc.emit("[debug] dropped line")
	proc.emit("[Appium] Session created successfully")
	proc.emit("[Appium] Session created successfully") // consecutive dup

	for i := 0; i < maxRingEntries+50; i++ {
		proc.emit(fmt.Sprintf("line %d", i))
	}

	require.Eventually(t, func() bool {
		logs, err := sup.Logs("dev-1")
		return err == nil && len(logs) == maxRingEntries
	}, 2*time.Second, 10*time.Millisecond)

	logs, err := sup.Logs("dev-1")
	require.NoError(t, err)

	for _, entry := range logs {
		assert.NotContains(t, entry.Message, "[debug]")
	}

	require.NoError(t, sup.ClearLogs("dev-1"))

	logs, err = sup.Logs("dev-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLogsWithoutServer(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	_, err := sup.Logs("nope")
	assert.ErrorIs(t, err, ErrNoServer)
	assert.ErrorIs(t, sup.ClearLogs("nope"), ErrNoServer)
}

func TestStopAll(t *testing.T) {
	sup, launcher, _ := newTestSupervisor(t)

	_, proc := startRunning(t, sup, launcher)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sup.StopAll(ctx)

	assert.True(t, proc.wasTerminated())
	assert.Empty(t, sup.List())
}
