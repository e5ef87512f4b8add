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

import "errors"

var (
	// ErrNoAvailablePorts indicates the whole driver port range is in use.
	ErrNoAvailablePorts = errors.New("no available ports")

	// ErrStartTimeout indicates the driver never printed its ready sentinel
	// within the start deadline.
	ErrStartTimeout = errors.New("driver server start timeout")

	// ErrStartFailed indicates the driver exited before becoming ready.
	ErrStartFailed = errors.New("driver server failed to start")

	// ErrNoServer indicates no driver server exists for the device.
	ErrNoServer = errors.New("no driver server for device")
)
