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

package core

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/version"
)

// Health assembles the periodic health snapshot. Host metric sampling
// failures degrade to zero values, never to an error.
func (s *Server) Health() *models.SystemHealth {
	health := &models.SystemHealth{
		Status:        "ok",
		Timestamp:     time.Now(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Version:       version.GetVersion(),
		Devices:       s.registry.Counts(),
		RunningDriver: len(s.drivers.List()),
		Subscribers:   s.hub.SubscriberCount(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health.MemoryUsedPercent = vm.UsedPercent
	}

	return health
}

// Stats assembles the counters snapshot.
func (s *Server) Stats() *models.SystemStats {
	totalRes, activeRes, totalSess, activeSess := s.reservations.Stats()

	return &models.SystemStats{
		Devices:            s.registry.Counts(),
		TotalReservations:  totalRes,
		ActiveReservations: activeRes,
		TotalSessions:      totalSess,
		ActiveSessions:     activeSess,
		RunningDrivers:     len(s.drivers.List()),
		CommandsExecuted:   s.commandsExecuted.Load(),
		CommandsFailed:     s.commandsFailed.Load(),
	}
}
