package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"digitflow/internal/logging"
	"digitflow/internal/services"
)

// Sample pairs a normalized 28×28 input with its digit label. Pixels are
// stored as float32 to halve the footprint of the reference set.
type Sample struct {
	Pixels []float32
	Label  int
}

// NewSample converts a decoded input into a training sample.
func NewSample(pixels []float64, label int) Sample {
	out := make([]float32, len(pixels))
	for i, v := range pixels {
		out[i] = float32(v)
	}
	return Sample{Pixels: out, Label: label}
}

func widen(src []float32, dst []float64) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

// TrainOptions controls one training run.
type TrainOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// Seed fixes initialization, shuffling, dropout, and augmentation.
	// Zero derives a seed from the clock.
	Seed int64
	// Workers bounds per-batch parallelism; zero uses GOMAXPROCS.
	Workers    int
	Augment    *Augmenter
	Validation []Sample
	Logger     *slog.Logger
}

// EpochResult summarizes one pass over the training set.
type EpochResult struct {
	Epoch              int
	Loss               float64
	Accuracy           float64
	ValidationAccuracy float64
	HasValidation      bool
	Duration           time.Duration
}

// TrainResult is the outcome of a successful training run.
type TrainResult struct {
	Network *Network
	Samples int
	Seed    int64
	Epochs  []EpochResult
}

// Train fits a freshly initialized network. Cancellation is honoured between
// batches. Every failure wraps services.ErrTrainingFailure.
func Train(ctx context.Context, samples []Sample, opts TrainOptions) (*TrainResult, error) {
	if err := validateTraining(samples, opts); err != nil {
		return nil, services.Wrap(services.ErrTrainingFailure, "", "train", "invalid input", err)
	}
	logger := logging.NewComponentLogger(opts.Logger, "trainer")
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, opts.BatchSize)

	net := NewNetwork(seed)
	opt := newAdam(net.params, opts.LearningRate)
	shuffle := rand.New(rand.NewPCG(uint64(seed), 1))
	pool := newWorkerPool(workers, seed)

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	result := &TrainResult{Network: net, Samples: len(samples), Seed: seed}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		started := time.Now()
		shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, services.Wrap(services.ErrTrainingFailure, "", "train", "cancelled", err)
			}
			end := min(start+opts.BatchSize, len(order))
			batchLoss, batchCorrect := pool.runBatch(net, samples, order[start:end], opts.Augment)
			if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
				return nil, services.Wrap(services.ErrTrainingFailure, "", "train",
					fmt.Sprintf("loss diverged in epoch %d", epoch), nil)
			}
			opt.apply(net.params, pool.merged(float64(end-start)))
			lossSum += batchLoss
			correct += batchCorrect
		}

		res := EpochResult{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(samples)),
			Accuracy: float64(correct) / float64(len(samples)),
			Duration: time.Since(started),
		}
		if len(opts.Validation) > 0 {
			res.ValidationAccuracy = Evaluate(net, opts.Validation)
			res.HasValidation = true
		}
		result.Epochs = append(result.Epochs, res)
		logger.Info("training epoch complete",
			logging.Int("epoch", epoch),
			logging.Int("epochs", opts.Epochs),
			logging.Float64("loss", res.Loss),
			logging.Float64("accuracy", res.Accuracy),
			logging.Float64("val_accuracy", res.ValidationAccuracy),
			logging.Duration("duration", res.Duration),
			logging.String(logging.FieldEventType, "training_epoch_complete"),
		)
	}
	if err := net.params.validate(); err != nil {
		return nil, services.Wrap(services.ErrTrainingFailure, "", "train", "invalid parameters", err)
	}
	return result, nil
}

// Evaluate returns the fraction of samples the network labels correctly.
func Evaluate(net *Network, samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	ws := newWorkspace(false)
	input := make([]float64, InputLen)
	correct := 0
	for _, s := range samples {
		widen(s.Pixels, input)
		net.forward(ws, input, nil)
		if argmax(ws.probs) == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

func validateTraining(samples []Sample, opts TrainOptions) error {
	if len(samples) == 0 {
		return fmt.Errorf("no training samples")
	}
	if opts.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if opts.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}
	for i, s := range samples {
		if len(s.Pixels) != InputLen {
			return fmt.Errorf("sample %d has %d pixels, want %d", i, len(s.Pixels), InputLen)
		}
		if s.Label < 0 || s.Label >= NumClasses {
			return fmt.Errorf("sample %d has label %d", i, s.Label)
		}
	}
	return nil
}

// trainWorker owns the scratch buffers for one slice of every batch.
type trainWorker struct {
	ws      *workspace
	grads   *Params
	rng     *rand.Rand
	input   []float64
	scratch []float64
	loss    float64
	correct int
}

type workerPool struct {
	workers []*trainWorker
}

func newWorkerPool(n int, seed int64) *workerPool {
	pool := &workerPool{workers: make([]*trainWorker, n)}
	for i := range pool.workers {
		pool.workers[i] = &trainWorker{
			ws:      newWorkspace(true),
			grads:   newParams(),
			rng:     rand.New(rand.NewPCG(uint64(seed), uint64(i)+2)),
			input:   make([]float64, InputLen),
			scratch: make([]float64, InputLen),
		}
	}
	return pool
}

// runBatch splits idx into contiguous chunks, one per worker, and returns the
// summed loss and number of correct predictions.
func (p *workerPool) runBatch(net *Network, samples []Sample, idx []int, aug *Augmenter) (float64, int) {
	n := min(len(p.workers), len(idx))
	chunk := (len(idx) + n - 1) / n
	var wg sync.WaitGroup
	for w := 0; w < len(p.workers); w++ {
		worker := p.workers[w]
		worker.grads.zero()
		worker.loss, worker.correct = 0, 0
		start := w * chunk
		if start >= len(idx) {
			continue
		}
		end := min(start+chunk, len(idx))
		wg.Add(1)
		go func(part []int) {
			defer wg.Done()
			for _, i := range part {
				widen(samples[i].Pixels, worker.input)
				input := worker.input
				if aug.Enabled() {
					aug.Apply(worker.rng, input, worker.scratch)
					input = worker.scratch
				}
				net.forward(worker.ws, input, worker.rng)
				if argmax(worker.ws.probs) == samples[i].Label {
					worker.correct++
				}
				worker.loss += net.backward(worker.ws, input, samples[i].Label, worker.grads)
			}
		}(idx[start:end])
	}
	wg.Wait()

	var loss float64
	var correct int
	for _, worker := range p.workers {
		loss += worker.loss
		correct += worker.correct
	}
	return loss, correct
}

// merged sums worker gradients into the first worker and averages them over
// batchLen samples.
func (p *workerPool) merged(batchLen float64) *Params {
	total := p.workers[0].grads.tensors()
	for _, worker := range p.workers[1:] {
		for i, t := range worker.grads.tensors() {
			floats.Add(total[i], t)
		}
	}
	for _, t := range total {
		floats.Scale(1/batchLen, t)
	}
	return p.workers[0].grads
}
