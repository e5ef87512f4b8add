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

package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
	"github.com/carverauto/devicelab/pkg/registry"
)

func TestReserveGoesThroughRegistryGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := registry.NewMockDeviceRegistry(ctrl)

	devices.EXPECT().Reserve("dev-1", "alice").Return(&models.Device{
		ID: "dev-1", Status: models.DeviceStatusReserved, ReservedBy: "alice",
	}, nil)

	m := NewManager(devices, logger.NewTestLogger())

	res, err := m.Reserve("dev-1", "alice", 30*time.Minute, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusActive, res.Status)
}

func TestReserveAbortsWhenRegistryRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := registry.NewMockDeviceRegistry(ctrl)

	devices.EXPECT().Reserve("dev-1", "bob").Return(nil, registry.ErrDeviceNotAvailable)

	m := NewManager(devices, logger.NewTestLogger())

	_, err := m.Reserve("dev-1", "bob", 0, "")
	require.ErrorIs(t, err, registry.ErrDeviceNotAvailable)

	// No record is kept when the gate rejects.
	assert.Empty(t, m.Reservations(ReservationFilter{DeviceID: "dev-1"}))
}

func TestReleaseAlwaysReturnsDeviceToPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := registry.NewMockDeviceRegistry(ctrl)

	// Releasing a device with no reservation record still hits the registry.
	devices.EXPECT().Release("dev-1").Return(&models.Device{
		ID: "dev-1", Status: models.DeviceStatusOnline,
	}, nil)

	m := NewManager(devices, logger.NewTestLogger())
	require.NoError(t, m.Release("dev-1"))
}

func TestEndSessionEndsUseExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := registry.NewMockDeviceRegistry(ctrl)

	devices.EXPECT().StartUse("dev-1").Return(&models.Device{
		ID: "dev-1", Status: models.DeviceStatusInUse,
	}, nil)
	devices.EXPECT().EndUse("dev-1").Return(&models.Device{
		ID: "dev-1", Status: models.DeviceStatusReserved,
	}, nil).Times(1)

	m := NewManager(devices, logger.NewTestLogger())

	session, err := m.CreateSession("dev-1", "alice")
	require.NoError(t, err)

	require.NoError(t, m.EndSession(session.ID))

	// A second end is rejected before reaching the registry.
	assert.ErrorIs(t, m.EndSession(session.ID), ErrSessionNotActive)
}
