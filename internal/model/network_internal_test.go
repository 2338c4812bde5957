package model

import (
	"math"
	"math/rand/v2"
	"testing"
)

// lossAt runs a dropout-free forward pass and returns the cross-entropy loss.
func lossAt(net *Network, input []float64, label int) float64 {
	ws := newWorkspace(false)
	net.forward(ws, input, nil)
	return -math.Log(math.Max(ws.probs[label], 1e-12))
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	net := NewNetwork(11)
	rng := rand.New(rand.NewPCG(5, 5))
	input := make([]float64, InputLen)
	for i := range input {
		input[i] = rng.Float64()
	}
	const label = 3

	ws := newWorkspace(true)
	net.forward(ws, input, nil)
	for i := range ws.dropMask {
		ws.dropMask[i] = 1
	}
	grads := newParams()
	net.backward(ws, input, label, grads)

	const eps = 1e-5
	params := net.params.tensors()
	analytic := grads.tensors()
	names := []string{"conv1_w", "conv1_b", "conv2_w", "conv2_b", "dense1_w", "dense1_b", "dense2_w", "dense2_b"}
	for ti, tensor := range params {
		for probe := 0; probe < 4; probe++ {
			idx := rng.IntN(len(tensor))
			orig := tensor[idx]
			tensor[idx] = orig + eps
			plus := lossAt(net, input, label)
			tensor[idx] = orig - eps
			minus := lossAt(net, input, label)
			tensor[idx] = orig

			numeric := (plus - minus) / (2 * eps)
			got := analytic[ti][idx]
			tolerance := 1e-4 + 1e-3*math.Abs(numeric)
			if math.Abs(numeric-got) > tolerance {
				t.Fatalf("%s[%d]: analytic gradient %.8f, numeric %.8f", names[ti], idx, got, numeric)
			}
		}
	}
}

func TestMaxPoolRoutesGradientToArgmax(t *testing.T) {
	shape := poolShape{channels: 1, inSide: 4}
	in := []float64{
		1, 5, 0, 0,
		2, 3, 0, 9,
		0, 0, 4, 4,
		7, 0, 4, 8,
	}
	out := make([]float64, shape.outLen())
	idx := make([]int, shape.outLen())
	shape.forward(in, out, idx)

	want := []float64{5, 9, 7, 8}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("pool output %d = %v, want %v", i, out[i], want[i])
		}
	}

	dIn := make([]float64, len(in))
	shape.backward([]float64{1, 2, 3, 4}, idx, dIn)
	for i, pos := range []int{1, 7, 12, 15} {
		if dIn[pos] != float64(i+1) {
			t.Fatalf("gradient at %d = %v, want %v", pos, dIn[pos], i+1)
		}
	}
}

func TestParamsValidateRejectsWrongShapes(t *testing.T) {
	p := newParams()
	p.Dense2B = p.Dense2B[:5]
	if err := p.validate(); err == nil {
		t.Fatal("expected shape error")
	}
	p = newParams()
	p.Conv1B[0] = math.NaN()
	if err := p.validate(); err == nil {
		t.Fatal("expected non-finite error")
	}
}
