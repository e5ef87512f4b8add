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
	"net"
	"strconv"
	"time"
)

// DriverStatus is the lifecycle state of a supervised driver-server child
// process.
type DriverStatus string

const (
	DriverStatusStarting DriverStatus = "starting"
	DriverStatusRunning  DriverStatus = "running"
	DriverStatusStopped  DriverStatus = "stopped"
	DriverStatusError    DriverStatus = "error"
)

// DriverServer is the externally visible state of one supervised automation
// driver process. At most one driver with status starting or running exists
// per device.
type DriverServer struct {
	DeviceID  string       `json:"deviceId"`
	Port      int          `json:"port"`
	Status    DriverStatus `json:"status"`
	PID       int          `json:"pid,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
}

// WebDriverURL returns the remote automation endpoint exposed by the driver.
// The host usually comes straight from an HTTP request and may carry the API
// port; only the hostname is kept and the driver's own port appended.
func (d *DriverServer) WebDriverURL(host string) string {
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}

	if host == "" {
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, strconv.Itoa(d.Port)) + "/wd/hub"
}

// DriverCapabilities is the default-capabilities blob passed to the driver
// binary at launch, derived from the device record.
type DriverCapabilities struct {
	PlatformName      string `json:"platformName"`
	PlatformVersion   string `json:"appium:platformVersion,omitempty"`
	DeviceName        string `json:"appium:deviceName"`
	UDID              string `json:"appium:udid"`
	AutomationName    string `json:"appium:automationName"`
	NewCommandTimeout int    `json:"appium:newCommandTimeout"`
	NoReset           bool   `json:"appium:noReset"`
}
