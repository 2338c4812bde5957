package model

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	// InputSize is the side length of the square grayscale network input.
	InputSize = 28
	// InputLen is the number of pixels in one input sample.
	InputLen = InputSize * InputSize
	// NumClasses is the number of output labels (digits 0-9).
	NumClasses = 10
	// Architecture tags artifacts produced by this layer layout.
	Architecture = "conv32-pool-conv64-pool-dense128-drop50-dense10"

	kernelSize   = 3
	conv1Filters = 32
	conv2Filters = 64
	hiddenUnits  = 128
	dropoutRate  = 0.5

	conv1Side = InputSize - kernelSize + 1 // 26
	pool1Side = conv1Side / 2              // 13
	conv2Side = pool1Side - kernelSize + 1 // 11
	pool2Side = conv2Side / 2              // 5
	flatLen   = conv2Filters * pool2Side * pool2Side
)

var (
	conv1  = convShape{inC: 1, outC: conv1Filters, inSide: InputSize}
	pool1  = poolShape{channels: conv1Filters, inSide: conv1Side}
	conv2  = convShape{inC: conv1Filters, outC: conv2Filters, inSide: pool1Side}
	pool2  = poolShape{channels: conv2Filters, inSide: conv2Side}
	dense1 = denseShape{in: flatLen, out: hiddenUnits}
	dense2 = denseShape{in: hiddenUnits, out: NumClasses}
)

// Params holds every trainable tensor of the network as flat row-major slices.
type Params struct {
	Conv1W  []float64 `cbor:"conv1_w"`
	Conv1B  []float64 `cbor:"conv1_b"`
	Conv2W  []float64 `cbor:"conv2_w"`
	Conv2B  []float64 `cbor:"conv2_b"`
	Dense1W []float64 `cbor:"dense1_w"`
	Dense1B []float64 `cbor:"dense1_b"`
	Dense2W []float64 `cbor:"dense2_w"`
	Dense2B []float64 `cbor:"dense2_b"`
}

func newParams() *Params {
	return &Params{
		Conv1W:  make([]float64, conv1.weightLen()),
		Conv1B:  make([]float64, conv1.outC),
		Conv2W:  make([]float64, conv2.weightLen()),
		Conv2B:  make([]float64, conv2.outC),
		Dense1W: make([]float64, dense1.in*dense1.out),
		Dense1B: make([]float64, dense1.out),
		Dense2W: make([]float64, dense2.in*dense2.out),
		Dense2B: make([]float64, dense2.out),
	}
}

// tensors returns the parameter slices in a fixed order.
func (p *Params) tensors() [][]float64 {
	return [][]float64{p.Conv1W, p.Conv1B, p.Conv2W, p.Conv2B, p.Dense1W, p.Dense1B, p.Dense2W, p.Dense2B}
}

func (p *Params) zero() {
	for _, t := range p.tensors() {
		clear(t)
	}
}

// validate checks tensor lengths against the fixed architecture and rejects
// non-finite values.
func (p *Params) validate() error {
	want := newParams().tensors()
	names := []string{"conv1_w", "conv1_b", "conv2_w", "conv2_b", "dense1_w", "dense1_b", "dense2_w", "dense2_b"}
	for i, t := range p.tensors() {
		if len(t) != len(want[i]) {
			return fmt.Errorf("tensor %s has %d values, want %d", names[i], len(t), len(want[i]))
		}
		for _, v := range t {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("tensor %s contains non-finite values", names[i])
			}
		}
	}
	return nil
}

// Network is the fixed-architecture digit classifier. A Network is safe for
// concurrent Forward calls once training has finished.
type Network struct {
	params *Params
}

// NewNetwork returns a He-initialized network drawn from a seeded source.
func NewNetwork(seed int64) *Network {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	p := newParams()
	heInit(rng, p.Conv1W, conv1.inC*kernelSize*kernelSize)
	heInit(rng, p.Conv2W, conv2.inC*kernelSize*kernelSize)
	heInit(rng, p.Dense1W, dense1.in)
	heInit(rng, p.Dense2W, dense2.in)
	return &Network{params: p}
}

// NewNetworkFromParams wraps previously trained parameters.
func NewNetworkFromParams(p *Params) (*Network, error) {
	if p == nil {
		return nil, fmt.Errorf("network params are nil")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Network{params: p}, nil
}

// Params exposes the network parameters for serialization.
func (n *Network) Params() *Params {
	return n.params
}

// Forward runs inference on one normalized 28×28 input and returns the softmax
// probabilities for each digit.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != InputLen {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), InputLen)
	}
	ws := newWorkspace(false)
	n.forward(ws, input, nil)
	out := make([]float64, NumClasses)
	copy(out, ws.probs)
	return out, nil
}

// Predict returns the most probable label alongside all probabilities.
func (n *Network) Predict(input []float64) (int, []float64, error) {
	probs, err := n.Forward(input)
	if err != nil {
		return 0, nil, err
	}
	return argmax(probs), probs, nil
}

// workspace carries per-sample activations and activation gradients so
// concurrent workers never share scratch memory.
type workspace struct {
	conv1Out []float64
	pool1Out []float64
	pool1Idx []int
	conv2Out []float64
	pool2Out []float64
	pool2Idx []int
	hidden   []float64
	dropMask []float64
	logits   []float64
	probs    []float64

	dPool2  []float64
	dConv2  []float64
	dPool1  []float64
	dConv1  []float64
	dHidden []float64
	dLogits []float64
	dInput  []float64
}

func newWorkspace(training bool) *workspace {
	ws := &workspace{
		conv1Out: make([]float64, conv1.outLen()),
		pool1Out: make([]float64, pool1.outLen()),
		pool1Idx: make([]int, pool1.outLen()),
		conv2Out: make([]float64, conv2.outLen()),
		pool2Out: make([]float64, pool2.outLen()),
		pool2Idx: make([]int, pool2.outLen()),
		hidden:   make([]float64, hiddenUnits),
		logits:   make([]float64, NumClasses),
		probs:    make([]float64, NumClasses),
	}
	if training {
		ws.dropMask = make([]float64, hiddenUnits)
		ws.dPool2 = make([]float64, pool2.outLen())
		ws.dConv2 = make([]float64, conv2.outLen())
		ws.dPool1 = make([]float64, pool1.outLen())
		ws.dConv1 = make([]float64, conv1.outLen())
		ws.dHidden = make([]float64, hiddenUnits)
		ws.dLogits = make([]float64, NumClasses)
	}
	return ws
}

// forward fills ws for input. When rng is non-nil dropout is applied.
func (n *Network) forward(ws *workspace, input []float64, rng *rand.Rand) {
	p := n.params
	conv1.forward(input, p.Conv1W, p.Conv1B, ws.conv1Out)
	relu(ws.conv1Out)
	pool1.forward(ws.conv1Out, ws.pool1Out, ws.pool1Idx)
	conv2.forward(ws.pool1Out, p.Conv2W, p.Conv2B, ws.conv2Out)
	relu(ws.conv2Out)
	pool2.forward(ws.conv2Out, ws.pool2Out, ws.pool2Idx)
	dense1.forward(ws.pool2Out, p.Dense1W, p.Dense1B, ws.hidden)
	relu(ws.hidden)
	if rng != nil {
		scale := 1 / (1 - dropoutRate)
		for i := range ws.hidden {
			if rng.Float64() < dropoutRate {
				ws.dropMask[i] = 0
			} else {
				ws.dropMask[i] = scale
			}
			ws.hidden[i] *= ws.dropMask[i]
		}
	}
	dense2.forward(ws.hidden, p.Dense2W, p.Dense2B, ws.logits)
	softmax(ws.logits, ws.probs)
}

// backward accumulates parameter gradients for one sample into grads and
// returns the cross-entropy loss. forward must have run with dropout first.
func (n *Network) backward(ws *workspace, input []float64, label int, grads *Params) float64 {
	p := n.params
	loss := -math.Log(math.Max(ws.probs[label], 1e-12))

	copy(ws.dLogits, ws.probs)
	ws.dLogits[label] -= 1

	clear(ws.dHidden)
	dense2.backward(ws.hidden, p.Dense2W, ws.dLogits, grads.Dense2W, grads.Dense2B, ws.dHidden)
	for i := range ws.dHidden {
		// hidden holds the masked activation: zero covers dropped and inactive units.
		if ws.hidden[i] <= 0 {
			ws.dHidden[i] = 0
		} else {
			ws.dHidden[i] *= ws.dropMask[i]
		}
	}

	clear(ws.dPool2)
	dense1.backward(ws.pool2Out, p.Dense1W, ws.dHidden, grads.Dense1W, grads.Dense1B, ws.dPool2)

	clear(ws.dConv2)
	pool2.backward(ws.dPool2, ws.pool2Idx, ws.dConv2)
	reluBackward(ws.conv2Out, ws.dConv2)

	clear(ws.dPool1)
	conv2.backward(ws.pool1Out, p.Conv2W, ws.dConv2, grads.Conv2W, grads.Conv2B, ws.dPool1)

	clear(ws.dConv1)
	pool1.backward(ws.dPool1, ws.pool1Idx, ws.dConv1)
	reluBackward(ws.conv1Out, ws.dConv1)

	conv1.backward(input, p.Conv1W, ws.dConv1, grads.Conv1W, grads.Conv1B, nil)
	return loss
}

func heInit(rng *rand.Rand, weights []float64, fanIn int) {
	std := math.Sqrt(2 / float64(fanIn))
	for i := range weights {
		weights[i] = rng.NormFloat64() * std
	}
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
