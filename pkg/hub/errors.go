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

package hub

import (
	"errors"
	"fmt"

	"github.com/carverauto/devicelab/pkg/models"
)

var (
	// ErrUnknownMessageType indicates an inbound message with an
	// unrecognized type field.
	ErrUnknownMessageType = errors.New("unknown message type")

	errMissingCommand = errors.New("command message missing command body")
	errMissingDevice  = errors.New("message missing device id")
)

func errUnknownMessage(t models.ClientMessageType) error {
	return fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
}
