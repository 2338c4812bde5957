package model

import (
	"math"
	"math/rand/v2"
)

// Augmenter applies random affine jitter to 28×28 samples. Rotation is in
// degrees; Zoom and Shift are fractions (0.1 means ±10%).
type Augmenter struct {
	RotationDegrees float64
	Zoom            float64
	Shift           float64
}

// Enabled reports whether any transform is configured.
func (a *Augmenter) Enabled() bool {
	return a != nil && (a.RotationDegrees > 0 || a.Zoom > 0 || a.Shift > 0)
}

// Apply writes a randomly transformed copy of src into dst using bilinear
// sampling. Pixels mapped from outside the source are zero.
func (a *Augmenter) Apply(rng *rand.Rand, src, dst []float64) {
	if !a.Enabled() {
		copy(dst, src)
		return
	}
	theta := uniform(rng, a.RotationDegrees) * math.Pi / 180
	zoomX := 1 + uniform(rng, a.Zoom)
	zoomY := 1 + uniform(rng, a.Zoom)
	shiftX := uniform(rng, a.Shift) * InputSize
	shiftY := uniform(rng, a.Shift) * InputSize
	a.transform(src, dst, theta, zoomX, zoomY, shiftX, shiftY)
}

// transform maps every destination pixel back into the source: undo shift,
// then rotation, then zoom around the image center.
func (a *Augmenter) transform(src, dst []float64, theta, zoomX, zoomY, shiftX, shiftY float64) {
	const center = (InputSize - 1) / 2.0
	cos, sin := math.Cos(theta), math.Sin(theta)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			dx := float64(x) - center - shiftX
			dy := float64(y) - center - shiftY
			rx := cos*dx + sin*dy
			ry := -sin*dx + cos*dy
			sx := rx/zoomX + center
			sy := ry/zoomY + center
			dst[y*InputSize+x] = bilinear(src, sx, sy)
		}
	}
}

func bilinear(src []float64, x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)
	return pixel(src, x0, y0)*(1-fx)*(1-fy) +
		pixel(src, x0+1, y0)*fx*(1-fy) +
		pixel(src, x0, y0+1)*(1-fx)*fy +
		pixel(src, x0+1, y0+1)*fx*fy
}

func pixel(src []float64, x, y int) float64 {
	if x < 0 || y < 0 || x >= InputSize || y >= InputSize {
		return 0
	}
	return src[y*InputSize+x]
}

func uniform(rng *rand.Rand, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * limit
}
