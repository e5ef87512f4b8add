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
	"bufio"
	"context"
	"fmt"
	"os/exec"
)

const streamBufferSize = 256

// ExecRunner runs commands with os/exec. It is the production CommandRunner.
type ExecRunner struct{}

// NewExecRunner returns a CommandRunner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Output runs the command and returns its stdout.
func (*ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w", name, args, err)
	}

	return out, nil
}

// CombinedOutput runs the command and returns stdout and stderr together.
func (*ExecRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w", name, args, err)
	}

	return out, nil
}

// Stream launches the command and emits stdout lines until the process exits
// or the stop function is called.
func (*ExecRunner) Stream(ctx context.Context, name string, args ...string) (<-chan string, StopFunc, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(streamCtx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s %v: stdout pipe: %w", name, args, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s %v: %w", name, args, err)
	}

	lines := make(chan string, streamBufferSize)

	go func() {
		defer close(lines)
		// Always reap the child, whether it exits on its own or is killed
		// by the canceled context.
		defer func() { _ = cmd.Wait() }()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return lines, StopFunc(cancel), nil
}
