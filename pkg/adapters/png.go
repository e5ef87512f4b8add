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
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// pngHeaderLen covers the 8-byte signature plus the IHDR length/type fields
// and the 8 bytes of width/height that follow.
const pngHeaderLen = 24

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// pngDimensions reads the width and height out of a PNG's IHDR chunk without
// decoding the image.
func pngDimensions(data []byte) (width, height int, err error) {
	if len(data) < pngHeaderLen || !bytes.Equal(data[:8], pngSignature) {
		return 0, 0, errNotPNG
	}

	width = int(binary.BigEndian.Uint32(data[16:20]))
	height = int(binary.BigEndian.Uint32(data[20:24]))

	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid IHDR dimensions %dx%d", errNotPNG, width, height)
	}

	return width, height, nil
}

const (
	placeholderWidth  = 400
	placeholderHeight = 860
)

// placeholderPNG renders a synthetic screen annotated with the device name
// and model, returned when every screenshot method has failed.
func placeholderPNG(name, model string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))

	background := color.RGBA{R: 0x1E, G: 0x1E, B: 0x28, A: 0xFF}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	band := image.Rect(0, placeholderHeight/2-48, placeholderWidth, placeholderHeight/2+48)
	bandColor := color.RGBA{R: 0x2A, G: 0x2A, B: 0x3A, A: 0xFF}
	draw.Draw(img, band, &image.Uniform{C: bandColor}, image.Point{}, draw.Src)

	drawCenteredLine(img, name, placeholderHeight/2-24)
	drawCenteredLine(img, model, placeholderHeight/2)
	drawCenteredLine(img, "screenshot unavailable", placeholderHeight/2+24)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}

	return buf.Bytes(), nil
}

func drawCenteredLine(img *image.RGBA, text string, y int) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13

	width := font.MeasureString(face, text).Ceil()

	x := (img.Bounds().Dx() - width) / 2
	if x < 4 {
		x = 4
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 0xE6, G: 0xE6, B: 0xF0, A: 0xFF}),
		Face: face,
		Dot:  fixed.P(x, y),
	}

	drawer.DrawString(text)
}
