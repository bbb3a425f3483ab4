package bandit

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// minShape keeps Beta shapes valid when real-valued rewards outside [0,1]
// drive a pseudo-count to zero or below.
const minShape = 1e-9

// ThompsonSampling draws one sample per arm from Beta(alpha_i, beta_i) and
// plays the largest. It implements PosteriorSampler.
type ThompsonSampling struct {
	arms arms
	rng  *rand.Rand
	src  rand.Source
}

// NewThompsonSampling returns a Thompson sampling strategy with a
// Beta(1,1) prior on every arm.
func NewThompsonSampling(nArms int, opts ...Option) (*ThompsonSampling, error) {
	if err := checkArms(NameThompson, nArms); err != nil {
		return nil, err
	}
	rng, src := newRNG(opts)
	return &ThompsonSampling{arms: newArms(nArms), rng: rng, src: src}, nil
}

func (s *ThompsonSampling) Name() string { return NameThompson }

func (s *ThompsonSampling) Reset() { s.arms.reset() }

func (s *ThompsonSampling) Sample() []float64 {
	out := make([]float64, s.arms.len())
	for i, st := range s.arms.stats {
		d := distuv.Beta{
			Alpha: math.Max(st.Alpha, minShape),
			Beta:  math.Max(st.Beta, minShape),
			Src:   s.src,
		}
		out[i] = d.Rand()
	}
	return out
}

func (s *ThompsonSampling) SelectWithSamples() (int, []float64) {
	samples := s.Sample()
	return argmaxRandomTie(s.rng, samples), samples
}

func (s *ThompsonSampling) SelectArm() int {
	arm, _ := s.SelectWithSamples()
	return arm
}

func (s *ThompsonSampling) Posterior() (alpha, beta []float64) { return s.arms.posterior() }

func (s *ThompsonSampling) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *ThompsonSampling) Stats() []ArmStats { return s.arms.snapshot() }

var _ PosteriorSampler = (*ThompsonSampling)(nil)
