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

package models

import (
	"time"
)

// DeviceCounts breaks the registry population down by status.
type DeviceCounts struct {
	Total        int `json:"total"`
	Online       int `json:"online"`
	Offline      int `json:"offline"`
	Unauthorized int `json:"unauthorized"`
	Reserved     int `json:"reserved"`
	InUse        int `json:"inUse"`
}

// SystemHealth is the periodic health snapshot broadcast to subscribers and
// served from /system/health.
type SystemHealth struct {
	Status        string       `json:"status"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	Version       string       `json:"version"`
	Devices       DeviceCounts `json:"devices"`
	RunningDriver int          `json:"runningDrivers"`
	Subscribers   int          `json:"subscribers"`
	// Host resource usage sampled via gopsutil; zero when sampling fails.
	CPUPercent        float64 `json:"cpuPercent"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
	Goroutines        int     `json:"goroutines"`
}

// SystemStats is the counters snapshot served from /system/stats.
type SystemStats struct {
	Devices            DeviceCounts `json:"devices"`
	TotalReservations  int          `json:"totalReservations"`
	ActiveReservations int          `json:"activeReservations"`
	TotalSessions      int          `json:"totalSessions"`
	ActiveSessions     int          `json:"activeSessions"`
	RunningDrivers     int          `json:"runningDrivers"`
	CommandsExecuted   int64        `json:"commandsExecuted"`
	CommandsFailed     int64        `json:"commandsFailed"`
}

// DeviceUsage aggregates session activity for one device.
type DeviceUsage struct {
	DeviceID     string     `json:"deviceId"`
	DeviceName   string     `json:"deviceName"`
	Sessions     int        `json:"sessions"`
	TotalMinutes float64    `json:"totalMinutes"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
}

// HourlyUsage counts sessions started in one wall-clock hour bucket.
type HourlyUsage struct {
	Hour     time.Time `json:"hour"`
	Sessions int       `json:"sessions"`
	Commands int       `json:"commands"`
}

// UsageSummary is the top-level analytics aggregate.
type UsageSummary struct {
	Since             time.Time    `json:"since"`
	TotalSessions     int          `json:"totalSessions"`
	TotalReservations int          `json:"totalReservations"`
	CommandsExecuted  int64        `json:"commandsExecuted"`
	CommandsFailed    int64        `json:"commandsFailed"`
	BusiestDevice     *DeviceUsage `json:"busiestDevice,omitempty"`
}
