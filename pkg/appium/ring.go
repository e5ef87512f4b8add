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
	"sync"

	"github.com/carverauto/devicelab/pkg/models"
)

const maxRingEntries = 500

// logRing is a bounded FIFO of post-filter driver log entries. Appending past
// the cap evicts the oldest entry; appending a line identical to the most
// recent one is a no-op.
type logRing struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func newLogRing() *logRing {
	return &logRing{}
}

// append adds an entry unless it duplicates the newest one. Returns whether
// the entry was stored.
func (r *logRing) append(entry models.LogEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.entries); n > 0 && r.entries[n-1].Message == entry.Message {
		return false
	}

	r.entries = append(r.entries, entry)

	if len(r.entries) > maxRingEntries {
		r.entries = r.entries[len(r.entries)-maxRingEntries:]
	}

	return true
}

// snapshot returns a copy of the current entries, oldest first.
func (r *logRing) snapshot() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.LogEntry, len(r.entries))
	copy(out, r.entries)

	return out
}

// clear empties the ring.
func (r *logRing) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
}

func (r *logRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
