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

package registry

import "errors"

var (
	// ErrDeviceNotFound indicates the id or serial is unknown to the registry.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrIllegalTransition indicates the requested status change is not in
	// the legal transition set.
	ErrIllegalTransition = errors.New("illegal device status transition")

	// ErrDeviceNotAvailable indicates the device is not online and cannot
	// accept a reservation.
	ErrDeviceNotAvailable = errors.New("device not available")
)
