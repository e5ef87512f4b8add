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

import "errors"

var (
	// ErrInvalidConfig indicates a rejected configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedCommand indicates a command kind the device's platform
	// does not implement.
	ErrUnsupportedCommand = errors.New("command not supported on this platform")

	// ErrAdapterMissing indicates no adapter serves the device's platform.
	ErrAdapterMissing = errors.New("no adapter for platform")

	// ErrDriverNotReserved rejects a driver start on a device that is
	// neither reserved nor in use.
	ErrDriverNotReserved = errors.New("device must be reserved before starting a driver")
)
