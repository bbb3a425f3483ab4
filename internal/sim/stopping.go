package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/freeeve/banditlab/pkg/bandit"
)

const (
	pvrWindowSize        = 100
	maxPosteriorDraws    = 1000
	minPosteriorDraws    = 100
	convergenceTolerance = 0.001
)

// StoppingConfig enables early termination of a replication once the
// believed-best arm is best with probability above Confidence.
type StoppingConfig struct {
	Confidence      float64 `json:"confidence" yaml:"confidence"`
	RegretThreshold float64 `json:"regret_threshold" yaml:"regret_threshold"`
	MinTrials       int     `json:"min_trials" yaml:"min_trials"`
}

// Validate checks the ranges of each setting.
func (c StoppingConfig) Validate() error {
	if !(c.Confidence >= 0 && c.Confidence < 1) {
		return bandit.InvalidConfig("simulation", "stopping.confidence", fmt.Sprintf("must be in [0,1), got %v", c.Confidence))
	}
	if !(c.RegretThreshold > 0) {
		return bandit.InvalidConfig("simulation", "stopping.regretThreshold", fmt.Sprintf("must be positive, got %v", c.RegretThreshold))
	}
	if c.MinTrials < 0 {
		return bandit.InvalidConfig("simulation", "stopping.minTrials", fmt.Sprintf("must be non-negative, got %d", c.MinTrials))
	}
	return nil
}

// stoppingState lives for one replication.
type stoppingState struct {
	window      []float64
	probability float64
	bestArm     int
}

func newStoppingState() *stoppingState {
	return &stoppingState{window: make([]float64, 0, pvrWindowSize)}
}

// push appends v, evicting the oldest sample once the window is full.
func (s *stoppingState) push(v float64) {
	if len(s.window) == pvrWindowSize {
		copy(s.window, s.window[1:])
		s.window = s.window[:pvrWindowSize-1]
	}
	s.window = append(s.window, v)
}

// smoothed is the most recent strictly positive sample, or 0.
func (s *stoppingState) smoothed() float64 {
	for i := len(s.window) - 1; i >= 0; i-- {
		if s.window[i] > 0 {
			return s.window[i]
		}
	}
	return 0
}

// evaluate runs one step of the stopping rule. alpha and beta are the
// posterior before this trial's update; samples are this trial's draws.
func (s *stoppingState) evaluate(cfg StoppingConfig, sampler bandit.PosteriorSampler, alpha, beta, samples []float64) bool {
	s.bestArm = expectedBestArm(alpha, beta)
	s.push(potentialValueRemaining(samples, s.bestArm))

	if s.smoothed() >= cfg.RegretThreshold {
		return false
	}
	s.probability = optimalArmProbability(sampler, s.bestArm)
	return s.probability > cfg.Confidence
}

// expectedBestArm returns argmax alpha_i / (alpha_i + beta_i), first on ties.
func expectedBestArm(alpha, beta []float64) int {
	means := make([]float64, len(alpha))
	for i := range alpha {
		means[i] = alpha[i] / (alpha[i] + beta[i])
	}
	return floats.MaxIdx(means)
}

// potentialValueRemaining is the relative gap between the best sample and
// the believed-best arm's sample. A zero sample for the believed-best arm
// yields +Inf unless every sample is zero.
func potentialValueRemaining(samples []float64, best int) float64 {
	top := floats.Max(samples)
	base := samples[best]
	if base == 0 {
		if top == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (top - base) / base
}

// optimalArmProbability estimates P(best is the posterior maximum) by
// repeated posterior draws. From draw minPosteriorDraws on it stops once two
// consecutive running estimates agree within convergenceTolerance.
func optimalArmProbability(sampler bandit.PosteriorSampler, best int) float64 {
	hits := 0
	estimate := 0.0
	for k := 1; k <= maxPosteriorDraws; k++ {
		draw := sampler.Sample()
		if draw[best] >= floats.Max(draw) {
			hits++
		}
		prev := estimate
		estimate = float64(hits) / float64(k)
		if k > minPosteriorDraws && math.Abs(estimate-prev) < convergenceTolerance {
			break
		}
	}
	return estimate
}
