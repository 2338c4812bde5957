package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// convShape describes a valid (unpadded) stride-1 square convolution.
type convShape struct {
	inC    int
	outC   int
	inSide int
}

func (c convShape) outSide() int   { return c.inSide - kernelSize + 1 }
func (c convShape) outLen() int    { return c.outC * c.outSide() * c.outSide() }
func (c convShape) weightLen() int { return c.outC * c.inC * kernelSize * kernelSize }

// forward computes out[o][y][x] = b[o] + Σ w[o][c][ky][kx] · in[c][y+ky][x+kx].
func (c convShape) forward(in, w, b, out []float64) {
	side := c.outSide()
	plane := c.inSide * c.inSide
	for o := 0; o < c.outC; o++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				sum := b[o]
				for ch := 0; ch < c.inC; ch++ {
					for ky := 0; ky < kernelSize; ky++ {
						wOff := ((o*c.inC+ch)*kernelSize + ky) * kernelSize
						inOff := ch*plane + (y+ky)*c.inSide + x
						sum += floats.Dot(w[wOff:wOff+kernelSize], in[inOff:inOff+kernelSize])
					}
				}
				out[(o*side+y)*side+x] = sum
			}
		}
	}
}

// backward accumulates dW and dB and, when dIn is non-nil, the input gradient.
func (c convShape) backward(in, w, dOut, dW, dB, dIn []float64) {
	side := c.outSide()
	plane := c.inSide * c.inSide
	for o := 0; o < c.outC; o++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				g := dOut[(o*side+y)*side+x]
				if g == 0 {
					continue
				}
				dB[o] += g
				for ch := 0; ch < c.inC; ch++ {
					for ky := 0; ky < kernelSize; ky++ {
						wOff := ((o*c.inC+ch)*kernelSize + ky) * kernelSize
						inOff := ch*plane + (y+ky)*c.inSide + x
						floats.AddScaled(dW[wOff:wOff+kernelSize], g, in[inOff:inOff+kernelSize])
						if dIn != nil {
							floats.AddScaled(dIn[inOff:inOff+kernelSize], g, w[wOff:wOff+kernelSize])
						}
					}
				}
			}
		}
	}
}

// poolShape describes a 2×2 stride-2 max pool; odd trailing rows are dropped.
type poolShape struct {
	channels int
	inSide   int
}

func (p poolShape) outSide() int { return p.inSide / 2 }
func (p poolShape) outLen() int  { return p.channels * p.outSide() * p.outSide() }

// forward records the flat input index of each maximum in idx.
func (p poolShape) forward(in, out []float64, idx []int) {
	side := p.outSide()
	plane := p.inSide * p.inSide
	for ch := 0; ch < p.channels; ch++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				best := -1
				bestVal := math.Inf(-1)
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						i := ch*plane + (2*y+dy)*p.inSide + 2*x + dx
						if in[i] > bestVal {
							bestVal = in[i]
							best = i
						}
					}
				}
				o := (ch*side+y)*side + x
				out[o] = bestVal
				idx[o] = best
			}
		}
	}
}

func (p poolShape) backward(dOut []float64, idx []int, dIn []float64) {
	for o, g := range dOut {
		dIn[idx[o]] += g
	}
}

// denseShape describes a fully connected layer with row-major weights
// (one row of length in per output unit).
type denseShape struct {
	in  int
	out int
}

func (d denseShape) forward(in, w, b, out []float64) {
	for j := 0; j < d.out; j++ {
		out[j] = b[j] + floats.Dot(w[j*d.in:(j+1)*d.in], in)
	}
}

func (d denseShape) backward(in, w, dOut, dW, dB, dIn []float64) {
	for j := 0; j < d.out; j++ {
		g := dOut[j]
		if g == 0 {
			continue
		}
		dB[j] += g
		floats.AddScaled(dW[j*d.in:(j+1)*d.in], g, in)
		floats.AddScaled(dIn, g, w[j*d.in:(j+1)*d.in])
	}
}

func relu(values []float64) {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
}

// reluBackward zeroes gradients where the forward activation was clamped.
func reluBackward(activation, grad []float64) {
	for i, v := range activation {
		if v <= 0 {
			grad[i] = 0
		}
	}
}

func softmax(logits, out []float64) {
	maxLogit := floats.Max(logits)
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
}
