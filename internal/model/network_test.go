package model_test

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"digitflow/internal/model"
)

func TestForwardReturnsProbabilityDistribution(t *testing.T) {
	net := model.NewNetwork(1)
	input := make([]float64, model.InputLen)
	for i := range input {
		input[i] = float64(i%7) / 7
	}

	probs, err := net.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(probs) != model.NumClasses {
		t.Fatalf("expected %d probabilities, got %d", model.NumClasses, len(probs))
	}
	sum := 0.0
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
}

func TestForwardIsDeterministicAndConcurrent(t *testing.T) {
	net := model.NewNetwork(2)
	input := make([]float64, model.InputLen)
	input[300], input[301], input[328] = 1, 0.5, 0.75

	want, err := net.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := net.Forward(input)
			if err != nil {
				t.Errorf("Forward failed: %v", err)
				return
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("concurrent forward differs (-want +got):\n%s", diff)
			}
		}()
	}
	wg.Wait()
}

func TestForwardRejectsWrongInputSize(t *testing.T) {
	if _, err := model.NewNetwork(1).Forward(make([]float64, 10)); err == nil {
		t.Fatal("expected size error")
	}
}

func TestSameSeedSameWeights(t *testing.T) {
	a := model.NewNetwork(42).Params()
	b := model.NewNetwork(42).Params()
	c := model.NewNetwork(43).Params()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different weights (-a +b):\n%s", diff)
	}
	if cmp.Equal(a, c, cmpopts.EquateApprox(0, 1e-12)) {
		t.Fatal("different seeds should produce different weights")
	}
}
