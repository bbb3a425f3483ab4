// Package reward provides stochastic reward sources for bandit arms.
package reward

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/freeeve/banditlab/pkg/bandit"
)

// Source produces one reward per pull. Implementations hold only their own
// fixed distribution parameters.
type Source interface {
	Draw() float64
}

// Kinds accepted in a Spec.
const (
	KindBernoulli = "bernoulli"
	KindNormal    = "normal"
	KindConstant  = "constant"
)

// Spec describes one arm's reward distribution.
type Spec struct {
	Kind  string  `json:"kind" yaml:"kind" validate:"required,oneof=bernoulli normal constant"`
	P     float64 `json:"p,omitempty" yaml:"p,omitempty" validate:"gte=0,lte=1"`
	Mu    float64 `json:"mu,omitempty" yaml:"mu,omitempty"`
	Sigma float64 `json:"sigma,omitempty" yaml:"sigma,omitempty" validate:"gte=0"`
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// Mean is the expected reward of the described distribution.
func (s Spec) Mean() float64 {
	switch s.Kind {
	case KindBernoulli:
		return s.P
	case KindNormal:
		return s.Mu
	default:
		return s.Value
	}
}

// Bernoulli pays 1 with probability P and 0 otherwise.
type Bernoulli struct {
	dist distuv.Bernoulli
}

// NewBernoulli returns a Bernoulli source. A nil src uses the global generator.
func NewBernoulli(p float64, src rand.Source) (*Bernoulli, error) {
	if !(p >= 0 && p <= 1) {
		return nil, bandit.InvalidConfig("reward", "p", fmt.Sprintf("must be in [0,1], got %v", p))
	}
	return &Bernoulli{dist: distuv.Bernoulli{P: p, Src: src}}, nil
}

func (b *Bernoulli) Draw() float64 { return b.dist.Rand() }

// Mean returns P.
func (b *Bernoulli) Mean() float64 { return b.dist.P }

// Normal draws from N(Mu, Sigma^2).
type Normal struct {
	dist distuv.Normal
}

// NewNormal returns a Normal source.
func NewNormal(mu, sigma float64, src rand.Source) (*Normal, error) {
	if !(sigma >= 0) || math.IsInf(sigma, 0) || math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, bandit.InvalidConfig("reward", "sigma",
			fmt.Sprintf("need finite mu and non-negative finite sigma, got mu=%v sigma=%v", mu, sigma))
	}
	return &Normal{dist: distuv.Normal{Mu: mu, Sigma: sigma, Src: src}}, nil
}

func (n *Normal) Draw() float64 { return n.dist.Rand() }

// Mean returns Mu.
func (n *Normal) Mean() float64 { return n.dist.Mu }

// Constant always pays the same reward.
type Constant float64

func (c Constant) Draw() float64 { return float64(c) }

// FromSpec builds the source a Spec describes.
func FromSpec(spec Spec, src rand.Source) (Source, error) {
	switch spec.Kind {
	case KindBernoulli:
		return NewBernoulli(spec.P, src)
	case KindNormal:
		return NewNormal(spec.Mu, spec.Sigma, src)
	case KindConstant:
		return Constant(spec.Value), nil
	default:
		return nil, bandit.InvalidConfig("reward", "kind", fmt.Sprintf("unknown kind %q", spec.Kind))
	}
}

// Build converts specs into sources sharing one random source.
func Build(specs []Spec, src rand.Source) ([]Source, error) {
	if len(specs) == 0 {
		return nil, bandit.InvalidConfig("reward", "arms", "at least one arm is required")
	}
	sources := make([]Source, len(specs))
	for i, spec := range specs {
		s, err := FromSpec(spec, src)
		if err != nil {
			return nil, fmt.Errorf("arm %d: %w", i, err)
		}
		sources[i] = s
	}
	return sources, nil
}

// BestArm returns the index of the spec with the highest mean (first on ties).
func BestArm(specs []Spec) int {
	best := 0
	for i, s := range specs {
		if s.Mean() > specs[best].Mean() {
			best = i
		}
	}
	return best
}
