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
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a supervised child with line-oriented output.
type Process interface {
	// PID returns the child's process id.
	PID() int

	// Lines emits stdout and stderr line-by-line; the channel closes when
	// both pipes drain.
	Lines() <-chan string

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// ExitCode is valid after Done is closed.
	ExitCode() int

	// Terminate asks the process group to exit gracefully.
	Terminate()

	// Kill force-kills the process group.
	Kill()
}

// Launcher spawns driver processes. The exec implementation is used in
// production; tests substitute a fake.
type Launcher interface {
	Launch(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecLauncher launches children with os/exec in their own process group so
// a termination signal reaches the driver and everything it forked.
type ExecLauncher struct{}

// NewExecLauncher returns the production Launcher.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{}
}

type execProcess struct {
	cmd      *exec.Cmd
	lines    chan string
	done     chan struct{}
	exitCode int
}

// Launch starts the command with merged line-scanned stdout and stderr.
func (*ExecLauncher) Launch(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdout pipe: %w", name, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stderr pipe: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	p := &execProcess{
		cmd:   cmd,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}

	var readers sync.WaitGroup

	readers.Add(2)

	go p.scan(stdout, &readers)
	go p.scan(stderr, &readers)

	go func() {
		readers.Wait()
		close(p.lines)

		err := cmd.Wait()
		p.exitCode = 0

		if err != nil {
			p.exitCode = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				p.exitCode = exitErr.ExitCode()
			}
		}

		close(p.done)
	}()

	return p, nil
}

func (p *execProcess) scan(pipe io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Lines() <-chan string {
	return p.lines
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitCode() int {
	return p.exitCode
}

func (p *execProcess) Terminate() {
	p.signalGroup(unix.SIGTERM)
}

func (p *execProcess) Kill() {
	p.signalGroup(unix.SIGKILL)
}

func (p *execProcess) signalGroup(sig unix.Signal) {
	pid := p.cmd.Process.Pid

	// Negative pid addresses the whole process group.
	if err := unix.Kill(-pid, sig); err != nil {
		_ = unix.Kill(pid, sig)
	}
}
