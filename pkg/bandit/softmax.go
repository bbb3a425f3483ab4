package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Softmax picks arm i with probability proportional to exp(mean_i / temperature).
type Softmax struct {
	temperature float64
	arms        arms
	rng         *rand.Rand
}

// NewSoftmax returns a Softmax (Boltzmann) strategy.
func NewSoftmax(nArms int, temperature float64, opts ...Option) (*Softmax, error) {
	if err := checkTemperature(NameSoftmax, nArms, temperature); err != nil {
		return nil, err
	}
	rng, _ := newRNG(opts)
	return &Softmax{temperature: temperature, arms: newArms(nArms), rng: rng}, nil
}

func (s *Softmax) Name() string { return NameSoftmax }

func (s *Softmax) Reset() { s.arms.reset() }

// Probabilities returns the selection distribution for the next pull.
// Exponents are shifted by the largest mean so no temperature overflows.
func (s *Softmax) Probabilities() []float64 {
	means := s.arms.means()
	top := floats.Max(means)
	probs := make([]float64, len(means))
	for i, v := range means {
		probs[i] = math.Exp((v - top) / s.temperature)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}

func (s *Softmax) SelectArm() int {
	return drawCumulative(s.rng, s.Probabilities())
}

func (s *Softmax) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *Softmax) Stats() []ArmStats { return s.arms.snapshot() }

// Hedge follows the Softmax law but falls back to a uniform distribution
// for any pull where the exponential overflows.
type Hedge struct {
	temperature float64
	arms        arms
	rng         *rand.Rand
	overflows   int
}

// NewHedge returns a Hedge strategy.
func NewHedge(nArms int, temperature float64, opts ...Option) (*Hedge, error) {
	if err := checkTemperature(NameHedge, nArms, temperature); err != nil {
		return nil, err
	}
	rng, _ := newRNG(opts)
	return &Hedge{temperature: temperature, arms: newArms(nArms), rng: rng}, nil
}

func (s *Hedge) Name() string { return NameHedge }

func (s *Hedge) Reset() {
	s.arms.reset()
	s.overflows = 0
}

// Probabilities returns the selection distribution for the next pull and
// whether it is the uniform overflow fallback.
func (s *Hedge) Probabilities() ([]float64, bool) {
	probs, ok := boltzmann(s.arms.means(), s.temperature)
	if ok {
		return probs, false
	}
	n := float64(len(probs))
	for i := range probs {
		probs[i] = 1 / n
	}
	return probs, true
}

// Overflows counts selections since the last Reset that used the fallback.
func (s *Hedge) Overflows() int { return s.overflows }

func (s *Hedge) SelectArm() int {
	probs, fellBack := s.Probabilities()
	if fellBack {
		s.overflows++
	}
	return drawCumulative(s.rng, probs)
}

func (s *Hedge) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *Hedge) Stats() []ArmStats { return s.arms.snapshot() }

// boltzmann computes exp(v/temperature) normalised, without shifting the
// exponents. ok is false when an exponential or the total overflowed.
func boltzmann(values []float64, temperature float64) (probs []float64, ok bool) {
	probs = make([]float64, len(values))
	total := 0.0
	for i, v := range values {
		probs[i] = math.Exp(v / temperature)
		total += probs[i]
	}
	if math.IsInf(total, 0) || math.IsNaN(total) || total == 0 {
		return probs, false
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, true
}

func checkTemperature(name string, nArms int, temperature float64) error {
	if err := checkArms(name, nArms); err != nil {
		return err
	}
	if !(temperature > 0) || math.IsInf(temperature, 0) {
		return configErr(name, "temperature", fmt.Sprintf("must be positive and finite, got %v", temperature))
	}
	return nil
}
