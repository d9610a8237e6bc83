// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package annotator

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/klauspost/compress/zlib"
)

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

type rasterImage struct {
	colorSpace string
	filter     string
	decode     string
	data       []byte
	// alpha is the compressed soft mask, nil for opaque images
	alpha  []byte
	width  int
	height int
}

// decodeImage detects the format from the leading bytes, ignoring any
// declared content type
func decodeImage(data []byte, level int) (*rasterImage, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return decodePNG(data, level)
	case bytes.HasPrefix(data, jpegMagic):
		return decodeJPEG(data)
	}
	return nil, ErrUnsupportedImageFormat
}

func decodePNG(data []byte, level int) (*rasterImage, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImageFormat, err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImageFormat)
	}
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	alpha := make([]byte, 0, b.Dx()*b.Dy())
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}
	ret := &rasterImage{
		width:      b.Dx(),
		height:     b.Dy(),
		colorSpace: "DeviceRGB",
		filter:     "FlateDecode",
	}
	if ret.data, err = deflate(rgb, level); err != nil {
		return nil, err
	}
	if !opaque {
		if ret.alpha, err = deflate(alpha, level); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func decodeJPEG(data []byte) (*rasterImage, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImageFormat, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImageFormat)
	}
	ret := &rasterImage{
		width:  cfg.Width,
		height: cfg.Height,
		filter: "DCTDecode",
		data:   data,
	}
	switch cfg.ColorModel {
	case color.GrayModel:
		ret.colorSpace = "DeviceGray"
	case color.YCbCrModel:
		ret.colorSpace = "DeviceRGB"
	case color.CMYKModel:
		// Adobe CMYK JPEGs store inverted components
		ret.colorSpace = "DeviceCMYK"
		ret.decode = "[1 0 1 0 1 0 1 0]"
	default:
		return nil, fmt.Errorf("%w: unsupported JPEG color model", ErrUnsupportedImageFormat)
	}
	return ret, nil
}

func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}
