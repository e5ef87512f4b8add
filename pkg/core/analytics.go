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
	"sort"
	"time"

	"github.com/carverauto/devicelab/pkg/models"
)

// recordCommandHour bumps the per-hour command counter used by the hourly
// analytics view.
func (s *Server) recordCommandHour(at time.Time) {
	hour := at.Truncate(time.Hour)

	s.hourlyMu.Lock()
	defer s.hourlyMu.Unlock()

	s.hourlyCommands[hour]++
}

// UsageSummary aggregates activity since the server started.
func (s *Server) UsageSummary() *models.UsageSummary {
	totalRes, _, totalSess, _ := s.reservations.Stats()

	summary := &models.UsageSummary{
		Since:             s.startedAt,
		TotalSessions:     totalSess,
		TotalReservations: totalRes,
		CommandsExecuted:  s.commandsExecuted.Load(),
		CommandsFailed:    s.commandsFailed.Load(),
	}

	usage := s.DeviceUsage()
	if len(usage) > 0 {
		summary.BusiestDevice = usage[0]
	}

	return summary
}

// DeviceUsage aggregates session activity per device, busiest first.
func (s *Server) DeviceUsage() []*models.DeviceUsage {
	byDevice := make(map[string]*models.DeviceUsage)

	for _, session := range s.reservations.Sessions() {
		usage, ok := byDevice[session.DeviceID]
		if !ok {
			usage = &models.DeviceUsage{DeviceID: session.DeviceID}

			if device, err := s.registry.Get(session.DeviceID); err == nil {
				usage.DeviceName = device.Name
			}

			byDevice[session.DeviceID] = usage
		}

		usage.Sessions++

		end := time.Now()
		if session.EndTime != nil {
			end = *session.EndTime
		}

		usage.TotalMinutes += end.Sub(session.StartTime).Minutes()

		if usage.LastUsed == nil || session.StartTime.After(*usage.LastUsed) {
			start := session.StartTime
			usage.LastUsed = &start
		}
	}

	out := make([]*models.DeviceUsage, 0, len(byDevice))
	for _, usage := range byDevice {
		out = append(out, usage)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}

		return out[i].DeviceID < out[j].DeviceID
	})

	return out
}

// HourlyUsage buckets sessions and commands by wall-clock hour, oldest
// first.
func (s *Server) HourlyUsage() []*models.HourlyUsage {
	buckets := make(map[time.Time]*models.HourlyUsage)

	for _, session := range s.reservations.Sessions() {
		hour := session.StartTime.Truncate(time.Hour)

		bucket, ok := buckets[hour]
		if !ok {
			bucket = &models.HourlyUsage{Hour: hour}
			buckets[hour] = bucket
		}

		bucket.Sessions++
	}

	s.hourlyMu.Lock()

	for hour, commands := range s.hourlyCommands {
		bucket, ok := buckets[hour]
		if !ok {
			bucket = &models.HourlyUsage{Hour: hour}
			buckets[hour] = bucket
		}

		bucket.Commands = commands
	}
	s.hourlyMu.Unlock()

	out := make([]*models.HourlyUsage, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, bucket)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Hour.Before(out[j].Hour)
	})

	return out
}
