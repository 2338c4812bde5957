package model

import "math"

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// adam keeps first and second moment estimates for every parameter tensor.
type adam struct {
	lr   float64
	step int
	m    [][]float64
	v    [][]float64
}

func newAdam(p *Params, lr float64) *adam {
	tensors := p.tensors()
	opt := &adam{lr: lr, m: make([][]float64, len(tensors)), v: make([][]float64, len(tensors))}
	for i, t := range tensors {
		opt.m[i] = make([]float64, len(t))
		opt.v[i] = make([]float64, len(t))
	}
	return opt
}

// apply updates p in place from averaged gradients g.
func (a *adam) apply(p, g *Params) {
	a.step++
	correction1 := 1 - math.Pow(adamBeta1, float64(a.step))
	correction2 := 1 - math.Pow(adamBeta2, float64(a.step))
	lr := a.lr * math.Sqrt(correction2) / correction1

	params := p.tensors()
	grads := g.tensors()
	for i, t := range params {
		m, v, grad := a.m[i], a.v[i], grads[i]
		for j := range t {
			m[j] = adamBeta1*m[j] + (1-adamBeta1)*grad[j]
			v[j] = adamBeta2*v[j] + (1-adamBeta2)*grad[j]*grad[j]
			t[j] -= lr * m[j] / (math.Sqrt(v[j]) + adamEpsilon)
		}
	}
}
