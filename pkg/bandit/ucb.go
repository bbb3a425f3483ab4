package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// UCB1 plays every arm once, then picks the largest upper confidence bound
// mean_i + sqrt(2 ln N / n_i).
type UCB1 struct {
	arms arms
	rng  *rand.Rand
}

// NewUCB1 returns a UCB1 strategy.
func NewUCB1(nArms int, opts ...Option) (*UCB1, error) {
	if err := checkArms(NameUCB1, nArms); err != nil {
		return nil, err
	}
	rng, _ := newRNG(opts)
	return &UCB1{arms: newArms(nArms), rng: rng}, nil
}

func (s *UCB1) Name() string { return NameUCB1 }

func (s *UCB1) Reset() { s.arms.reset() }

// Bounds returns the upper confidence bound of every arm. Only meaningful
// once every arm has been pulled.
func (s *UCB1) Bounds() []float64 {
	logTotal := math.Log(float64(s.arms.total))
	bounds := make([]float64, s.arms.len())
	for i, st := range s.arms.stats {
		bounds[i] = st.Mean + math.Sqrt(2*logTotal/float64(st.Pulls))
	}
	return bounds
}

func (s *UCB1) SelectArm() int {
	if arm := s.arms.firstUnplayed(); arm >= 0 {
		return arm
	}
	return argmaxRandomTie(s.rng, s.Bounds())
}

func (s *UCB1) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *UCB1) Stats() []ArmStats { return s.arms.snapshot() }

// maxTau caps tau(r) well inside int range.
const maxTau = 1 << 53

// UCB2 commits to an arm for a phase of tau(r+1)-tau(r) pulls before
// re-evaluating, with tau(r) = ceil((1+alpha)^r).
type UCB2 struct {
	alpha float64
	arms  arms
	r     []int

	current    int
	nextUpdate int
}

// UCB2Phase describes UCB2's commitment state.
type UCB2Phase struct {
	Sweeping     bool // some arm has not been pulled yet
	Arm          int  // committed arm
	NextBoundary int  // total pull count at which the commitment ends
	Epochs       []int
}

// NewUCB2 returns a UCB2 strategy with exploration rate alpha > 0.
// UCB2 is deterministic; options are accepted so every constructor has the
// same shape.
func NewUCB2(nArms int, alpha float64, _ ...Option) (*UCB2, error) {
	if err := checkArms(NameUCB2, nArms); err != nil {
		return nil, err
	}
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return nil, configErr(NameUCB2, "alpha", fmt.Sprintf("must be positive and finite, got %v", alpha))
	}
	return &UCB2{alpha: alpha, arms: newArms(nArms), r: make([]int, nArms)}, nil
}

func (s *UCB2) Name() string { return NameUCB2 }

func (s *UCB2) Reset() {
	s.arms.reset()
	for i := range s.r {
		s.r[i] = 0
	}
	s.current = 0
	s.nextUpdate = 0
}

// Phase returns a copy of the commitment state.
func (s *UCB2) Phase() UCB2Phase {
	epochs := make([]int, len(s.r))
	copy(epochs, s.r)
	return UCB2Phase{
		Sweeping:     s.arms.firstUnplayed() >= 0,
		Arm:          s.current,
		NextBoundary: s.nextUpdate,
		Epochs:       epochs,
	}
}

func (s *UCB2) tau(r int) int {
	v := math.Ceil(math.Pow(1+s.alpha, float64(r)))
	if v > maxTau {
		return maxTau
	}
	return int(v)
}

func (s *UCB2) bonus(total, r int) float64 {
	tau := float64(s.tau(r))
	l := math.Log(math.E * float64(total) / tau)
	if l <= 0 {
		return 0
	}
	return math.Sqrt((1 + s.alpha) * l / (2 * tau))
}

// commit starts a new phase on arm.
func (s *UCB2) commit(arm int) {
	s.current = arm
	s.nextUpdate += max(1, s.tau(s.r[arm]+1)-s.tau(s.r[arm]))
	s.r[arm]++
}

func (s *UCB2) SelectArm() int {
	if arm := s.arms.firstUnplayed(); arm >= 0 {
		s.commit(arm)
		return arm
	}
	if s.nextUpdate > s.arms.total {
		return s.current
	}

	values := make([]float64, s.arms.len())
	for i, st := range s.arms.stats {
		values[i] = st.Mean + s.bonus(s.arms.total, s.r[i])
	}
	arm := floats.MaxIdx(values)
	s.commit(arm)
	return arm
}

func (s *UCB2) Update(arm int, reward float64) { s.arms.record(arm, reward) }

func (s *UCB2) Stats() []ArmStats { return s.arms.snapshot() }
