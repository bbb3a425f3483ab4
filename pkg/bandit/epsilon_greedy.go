package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// EpsilonGreedy exploits the best running mean with probability 1-epsilon
// and explores a uniformly random arm otherwise.
type EpsilonGreedy struct {
	epsilon float64
	arms    arms
	rng     *rand.Rand
}

// NewEpsilonGreedy returns an EpsilonGreedy strategy. Epsilon 0 is pure
// exploitation, 1 pure exploration.
func NewEpsilonGreedy(nArms int, epsilon float64, opts ...Option) (*EpsilonGreedy, error) {
	if err := checkArms(NameEpsilonGreedy, nArms); err != nil {
		return nil, err
	}
	if epsilon < 0 || epsilon > 1 || math.IsNaN(epsilon) {
		return nil, configErr(NameEpsilonGreedy, "epsilon", fmt.Sprintf("must be in [0,1], got %v", epsilon))
	}
	rng, _ := newRNG(opts)
	return &EpsilonGreedy{epsilon: epsilon, arms: newArms(nArms), rng: rng}, nil
}

func (s *EpsilonGreedy) Name() string { return NameEpsilonGreedy }

func (s *EpsilonGreedy) Reset() { s.arms.reset() }

func (s *EpsilonGreedy) SelectArm() int {
	if s.rng.Float64() >= s.epsilon {
		return argmaxRandomTie(s.rng, s.arms.means())
	}
	return s.rng.IntN(s.arms.len())
}

func (s *EpsilonGreedy) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *EpsilonGreedy) Stats() []ArmStats { return s.arms.snapshot() }

// EpsilonGreedyAnnealing decays its exploration rate as 1/ln(t + factor),
// where t is one more than the number of pulls so far.
type EpsilonGreedyAnnealing struct {
	factor float64
	arms   arms
	rng    *rand.Rand
}

// NewEpsilonGreedyAnnealing returns an annealing epsilon-greedy strategy.
func NewEpsilonGreedyAnnealing(nArms int, annealingFactor float64, opts ...Option) (*EpsilonGreedyAnnealing, error) {
	if err := checkArms(NameEpsilonGreedyAnnealing, nArms); err != nil {
		return nil, err
	}
	if annealingFactor < 0 || math.IsNaN(annealingFactor) || math.IsInf(annealingFactor, 0) {
		return nil, configErr(NameEpsilonGreedyAnnealing, "annealingFactor",
			fmt.Sprintf("must be finite and non-negative, got %v", annealingFactor))
	}
	rng, _ := newRNG(opts)
	return &EpsilonGreedyAnnealing{factor: annealingFactor, arms: newArms(nArms), rng: rng}, nil
}

func (s *EpsilonGreedyAnnealing) Name() string { return NameEpsilonGreedyAnnealing }

func (s *EpsilonGreedyAnnealing) Reset() { s.arms.reset() }

// Epsilon returns the exploration rate the next selection will use. Values
// above 1 mean the selection always explores.
func (s *EpsilonGreedyAnnealing) Epsilon() float64 {
	t := float64(s.arms.total + 1)
	l := math.Log(t + s.factor)
	if l <= 0 {
		return math.Inf(1)
	}
	return 1 / l
}

func (s *EpsilonGreedyAnnealing) SelectArm() int {
	if s.rng.Float64() >= s.Epsilon() {
		return argmaxRandomTie(s.rng, s.arms.means())
	}
	return s.rng.IntN(s.arms.len())
}

func (s *EpsilonGreedyAnnealing) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *EpsilonGreedyAnnealing) Stats() []ArmStats { return s.arms.snapshot() }
