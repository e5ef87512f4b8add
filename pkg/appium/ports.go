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
	"fmt"
	"net"
	"sync"
)

// portAllocator hands out ports from the contiguous driver range. Claimed
// ports are tracked in-process; candidates are additionally probed with a
// bind so ports held by other processes are skipped.
type portAllocator struct {
	mu    sync.Mutex
	base  int
	count int
	inUse map[int]bool

	// probe reports whether the port is free on the host. Swapped out in
	// tests.
	probe func(port int) bool
}

func newPortAllocator(base, count int) *portAllocator {
	return &portAllocator{
		base:  base,
		count: count,
		inUse: make(map[int]bool),
		probe: probeBind,
	}
}

// allocate scans the range for the first port that is neither claimed by
// this allocator nor bound by another process, and claims it.
func (p *portAllocator) allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.base; port < p.base+p.count; port++ {
		if p.inUse[port] {
			continue
		}

		if !p.probe(port) {
			continue
		}

		p.inUse[port] = true

		return port, nil
	}

	return 0, fmt.Errorf("%w in range [%d, %d)", ErrNoAvailablePorts, p.base, p.base+p.count)
}

// release returns a port to the pool.
func (p *portAllocator) release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inUse, port)
}

// probeBind checks availability by binding a listener and closing it.
func probeBind(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}

	_ = l.Close()

	return true
}
