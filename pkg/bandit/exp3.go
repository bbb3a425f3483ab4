package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// weightCeiling bounds EXP3 weights. Crossing it rescales every weight by
// the same factor, which leaves the selection distribution unchanged.
const weightCeiling = 1e150

// EXP3 is the exponential-weight algorithm for exploration and exploitation.
type EXP3 struct {
	gamma   float64
	weights []float64
	arms    arms
	rng     *rand.Rand
}

// NewEXP3 returns an EXP3 strategy with exploration rate gamma in (0,1).
func NewEXP3(nArms int, gamma float64, opts ...Option) (*EXP3, error) {
	if err := checkArms(NameEXP3, nArms); err != nil {
		return nil, err
	}
	if !(gamma > 0 && gamma < 1) {
		return nil, configErr(NameEXP3, "gamma", fmt.Sprintf("must be in (0,1), got %v", gamma))
	}
	rng, _ := newRNG(opts)
	s := &EXP3{gamma: gamma, weights: make([]float64, nArms), arms: newArms(nArms), rng: rng}
	s.Reset()
	return s, nil
}

func (s *EXP3) Name() string { return NameEXP3 }

func (s *EXP3) Reset() {
	s.arms.reset()
	for i := range s.weights {
		s.weights[i] = 1
	}
}

// Weights returns a copy of the current arm weights.
func (s *EXP3) Weights() []float64 {
	out := make([]float64, len(s.weights))
	copy(out, s.weights)
	return out
}

// Probabilities mixes normalised weights with uniform exploration.
func (s *EXP3) Probabilities() []float64 {
	total := floats.Sum(s.weights)
	n := float64(len(s.weights))
	probs := make([]float64, len(s.weights))
	for i, w := range s.weights {
		probs[i] = (1-s.gamma)*(w/total) + s.gamma/n
	}
	return probs
}

func (s *EXP3) SelectArm() int {
	return drawCumulative(s.rng, s.Probabilities())
}

// Update applies the importance-weighted reward estimate to the chosen arm.
func (s *EXP3) Update(arm int, reward float64) {
	p := s.Probabilities()[arm]
	s.arms.record(arm, reward)

	n := float64(len(s.weights))
	x := reward / p
	w := s.weights[arm] * math.Exp((s.gamma/n)*x)
	switch {
	case math.IsInf(w, 1):
		w = math.MaxFloat64
	case !(w > 0):
		w = math.SmallestNonzeroFloat64
	}
	s.weights[arm] = w

	if s.weights[arm] > weightCeiling {
		for i := range s.weights {
			s.weights[i] = math.Max(s.weights[i]/weightCeiling, math.SmallestNonzeroFloat64)
		}
	}
}

func (s *EXP3) Stats() []ArmStats { return s.arms.snapshot() }
