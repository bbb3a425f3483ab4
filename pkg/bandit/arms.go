package bandit

// ArmStats is a snapshot of one arm's running statistics.
type ArmStats struct {
	Pulls int     `json:"pulls"`
	Mean  float64 `json:"mean"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// PosteriorMean is alpha / (alpha + beta).
func (s ArmStats) PosteriorMean() float64 {
	return s.Alpha / (s.Alpha + s.Beta)
}

// arms holds the per-arm counters every strategy keeps. Strategies embed it
// by value and call record from their own Update.
type arms struct {
	stats []ArmStats
	total int
}

func newArms(n int) arms {
	a := arms{stats: make([]ArmStats, n)}
	a.reset()
	return a
}

func (a *arms) reset() {
	for i := range a.stats {
		a.stats[i] = ArmStats{Alpha: 1, Beta: 1}
	}
	a.total = 0
}

func (a *arms) record(arm int, reward float64) {
	s := &a.stats[arm]
	s.Pulls++
	s.Mean += (reward - s.Mean) / float64(s.Pulls)
	s.Alpha += reward
	s.Beta += 1 - reward
	a.total++
}

func (a *arms) len() int { return len(a.stats) }

func (a *arms) snapshot() []ArmStats {
	out := make([]ArmStats, len(a.stats))
	copy(out, a.stats)
	return out
}

func (a *arms) means() []float64 {
	out := make([]float64, len(a.stats))
	for i, s := range a.stats {
		out[i] = s.Mean
	}
	return out
}

func (a *arms) posterior() (alpha, beta []float64) {
	alpha = make([]float64, len(a.stats))
	beta = make([]float64, len(a.stats))
	for i, s := range a.stats {
		alpha[i] = s.Alpha
		beta[i] = s.Beta
	}
	return alpha, beta
}

// firstUnplayed returns the lowest arm index never pulled, or -1.
func (a *arms) firstUnplayed() int {
	for i, s := range a.stats {
		if s.Pulls == 0 {
			return i
		}
	}
	return -1
}
