package model

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"digitflow/internal/services"
)

// ErrImageDecode marks bytes that do not decode to a raster image.
var ErrImageDecode = services.ErrImageDecode

// MaxImageSide bounds the width and height accepted by DecodeImage.
const MaxImageSide = 4096

// DecodeImage converts encoded image bytes into a normalized 28×28 grayscale
// input in [0,1]. The image is scaled to 28×28 before grayscale conversion.
// Headers declaring more than MaxImageSide pixels per side are rejected before
// any raster is allocated.
func DecodeImage(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrImageDecode)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s image has no pixels", ErrImageDecode, format)
	}
	if cfg.Width > MaxImageSide || cfg.Height > MaxImageSide {
		return nil, fmt.Errorf("%w: %dx%d %s image exceeds %dx%d", ErrImageDecode, cfg.Width, cfg.Height, format, MaxImageSide, MaxImageSide)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %s image has no pixels", ErrImageDecode, format)
	}
	return Normalize(src), nil
}

// DecodeFile reads and decodes the image stored at path.
func DecodeFile(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	return DecodeImage(data)
}

// Normalize scales img to the network input size and returns luminance values
// divided by 255.
func Normalize(img image.Image) []float64 {
	gray := image.NewGray(image.Rect(0, 0, InputSize, InputSize))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	out := make([]float64, InputLen)
	for y := 0; y < InputSize; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+InputSize]
		for x, v := range row {
			out[y*InputSize+x] = float64(v) / 255
		}
	}
	return out
}
