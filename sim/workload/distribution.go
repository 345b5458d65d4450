package workload

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws the value of one cloudlet field. The index lets table-driven
// samplers cycle deterministically; random samplers ignore it.
type Sampler interface {
	Sample(i int) float64
}

// CyclicSampler walks a fixed table.
type CyclicSampler struct {
	values []float64
}

func (s *CyclicSampler) Sample(i int) float64 {
	return s.values[i%len(s.values)]
}

// ConstantSampler always returns the same fixed value.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ int) float64 {
	return s.value
}

// RandSampler adapts a gonum distribution.
type RandSampler struct {
	dist     distuv.Rander
	min, max float64
}

// Sample draws from the distribution and clamps to [min, max].
func (s *RandSampler) Sample(_ int) float64 {
	return math.Min(s.max, math.Max(s.min, s.dist.Rand()))
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec. Random distributions draw from
// src, which callers obtain from a sim.PartitionedRNG stream.
func NewSampler(spec DistSpec, src rand.Source) (Sampler, error) {
	switch spec.Type {
	case "cyclic":
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("cyclic distribution requires values")
		}
		return &CyclicSampler{values: spec.Values}, nil

	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := spec.Params["min"], spec.Params["max"]
		if lo > hi {
			return nil, fmt.Errorf("uniform min %v exceeds max %v", lo, hi)
		}
		if lo == hi {
			return &ConstantSampler{value: lo}, nil
		}
		return &RandSampler{dist: distuv.Uniform{Min: lo, Max: hi, Src: src}, min: lo, max: hi}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := spec.Params["min"], spec.Params["max"]
		if lo > hi {
			return nil, fmt.Errorf("gaussian min %v exceeds max %v", lo, hi)
		}
		if spec.Params["std_dev"] <= 0 {
			return &ConstantSampler{value: math.Min(hi, math.Max(lo, spec.Params["mean"]))}, nil
		}
		return &RandSampler{
			dist: distuv.Normal{Mu: spec.Params["mean"], Sigma: spec.Params["std_dev"], Src: src},
			min:  lo,
			max:  hi,
		}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		mean := spec.Params["mean"]
		if mean <= 0 {
			return nil, fmt.Errorf("exponential mean must be positive, got %v", mean)
		}
		return &RandSampler{dist: distuv.Exponential{Rate: 1 / mean, Src: src}, min: 0, max: math.Inf(1)}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
