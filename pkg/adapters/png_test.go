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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGDimensions(t *testing.T) {
	width, height, err := pngDimensions(pngHeader(1170, 2532))
	require.NoError(t, err)
	assert.Equal(t, 1170, width)
	assert.Equal(t, 2532, height)
}

func TestPNGDimensionsRejectsNonPNG(t *testing.T) {
	_, _, err := pngDimensions([]byte("JFIF not a png at all, promise"))
	require.ErrorIs(t, err, errNotPNG)

	_, _, err = pngDimensions(pngSignature)
	require.ErrorIs(t, err, errNotPNG)

	_, _, err = pngDimensions(pngHeader(0, 0))
	require.ErrorIs(t, err, errNotPNG)
}

func TestPlaceholderPNGIsWellFormed(t *testing.T) {
	data, err := placeholderPNG("Lab iPhone", "iPhone14,5")
	require.NoError(t, err)
	require.True(t, isPNG(data))

	width, height, err := pngDimensions(data)
	require.NoError(t, err)
	assert.Equal(t, placeholderWidth, width)
	assert.Equal(t, placeholderHeight, height)
}
