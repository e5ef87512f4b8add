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

import "errors"

var (
	// ErrUnsupportedOperation indicates the command kind is not implemented
	// for this platform or device type.
	ErrUnsupportedOperation = errors.New("operation not supported")

	// ErrScreenshotTimeout indicates the capture exceeded its wall-clock bound.
	ErrScreenshotTimeout = errors.New("screenshot timed out")

	// ErrResourceExhausted indicates the platform tooling signalled transient
	// resource starvation (spawn failure, EAGAIN). Consumers shed load on it.
	ErrResourceExhausted = errors.New("device resources exhausted")

	// ErrEmptyScreenshot indicates the tooling produced a zero-byte capture.
	ErrEmptyScreenshot = errors.New("screenshot is empty")

	// ErrDeviceNotListed indicates the identifier was absent from the
	// platform listing.
	ErrDeviceNotListed = errors.New("device not present in listing")

	errNotPNG = errors.New("data is not a PNG")
)
