// Package bandit implements multi-armed bandit arm-selection strategies.
//
// Every strategy keeps the same per-arm statistics (pull count, running mean
// and Beta pseudo-counts) and differs only in how it picks the next arm.
package bandit

import (
	"fmt"
	"sort"
)

// Strategy picks arms and learns from their rewards.
type Strategy interface {
	Name() string
	// Reset restores construction-time state. Call before each replication.
	Reset()
	// SelectArm decides the next arm. It never mutates arm statistics.
	SelectArm() int
	// Update records the reward observed for arm.
	Update(arm int, reward float64)
	// Stats returns a copy of the per-arm statistics.
	Stats() []ArmStats
}

// PosteriorSampler is implemented by strategies that select by sampling a
// Beta posterior. Not all strategies support it; use a type assertion to check.
type PosteriorSampler interface {
	Strategy
	// SelectWithSamples selects an arm and returns the per-arm draws behind it.
	SelectWithSamples() (int, []float64)
	// Sample draws one fresh vector from the posterior without mutating it.
	Sample() []float64
	// Posterior returns copies of the alpha and beta vectors.
	Posterior() (alpha, beta []float64)
}

// Strategy names accepted by New.
const (
	NameEpsilonGreedy          = "epsilon_greedy"
	NameEpsilonGreedyAnnealing = "epsilon_greedy_annealing"
	NameSoftmax                = "softmax"
	NameHedge                  = "hedge"
	NameEXP3                   = "exp3"
	NameUCB1                   = "ucb1"
	NameUCB2                   = "ucb2"
	NameThompson               = "thompson"
)

// DefaultAnnealingFactor keeps ln(t + factor) positive at t = 1.
const DefaultAnnealingFactor = 1e-7

// Params carries the hyperparameters of every variant. Each strategy reads
// only the fields it needs.
type Params struct {
	Epsilon         float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
	AnnealingFactor float64 `json:"annealing_factor,omitempty" yaml:"annealing_factor,omitempty"`
	Temperature     float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Gamma           float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Alpha           float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

var constructors = map[string]func(nArms int, p Params, opts ...Option) (Strategy, error){
	NameEpsilonGreedy: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewEpsilonGreedy(n, p.Epsilon, opts...)
	},
	NameEpsilonGreedyAnnealing: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewEpsilonGreedyAnnealing(n, p.AnnealingFactor, opts...)
	},
	NameSoftmax: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewSoftmax(n, p.Temperature, opts...)
	},
	NameHedge: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewHedge(n, p.Temperature, opts...)
	},
	NameEXP3: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewEXP3(n, p.Gamma, opts...)
	},
	NameUCB1: func(n int, _ Params, opts ...Option) (Strategy, error) {
		return NewUCB1(n, opts...)
	},
	NameUCB2: func(n int, p Params, opts ...Option) (Strategy, error) {
		return NewUCB2(n, p.Alpha, opts...)
	},
	NameThompson: func(n int, _ Params, opts ...Option) (Strategy, error) {
		return NewThompsonSampling(n, opts...)
	},
}

// New builds the named strategy.
func New(name string, nArms int, p Params, opts ...Option) (Strategy, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, configErr("strategy", "name", fmt.Sprintf("unknown strategy %q", name))
	}
	return ctor(nArms, p, opts...)
}

// Names lists the strategies New accepts, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
