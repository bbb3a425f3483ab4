package bandit

import (
	"math"
	"testing"
)

func TestEpsilonGreedy_ZeroEpsilonLocksOnRewardingArm(t *testing.T) {
	payout := []float64{1, 0}
	for seed := uint64(0); seed < 20; seed++ {
		s, err := NewEpsilonGreedy(2, 0, WithSource(SeedSource(seed)))
		if err != nil {
			t.Fatal(err)
		}

		var chosen []int
		for trial := 0; trial < 5; trial++ {
			arm := s.SelectArm()
			chosen = append(chosen, arm)
			s.Update(arm, payout[arm])
		}

		locked := false
		for i, arm := range chosen {
			if locked && arm != 0 {
				t.Fatalf("seed %d: arm %d chosen at trial %d after arm 0 paid out: %v", seed, arm, i, chosen)
			}
			if arm == 0 {
				locked = true
			}
		}
	}
}

func TestEpsilonGreedy_ExploitsBestMean(t *testing.T) {
	s, _ := NewEpsilonGreedy(3, 0, WithSource(SeedSource(1)))
	s.Update(0, 0.2)
	s.Update(1, 0.9)
	s.Update(2, 0.5)
	for i := 0; i < 100; i++ {
		if arm := s.SelectArm(); arm != 1 {
			t.Fatalf("expected arm 1, got %d", arm)
		}
	}
}

func TestEpsilonGreedy_FullExplorationIsUniform(t *testing.T) {
	s, _ := NewEpsilonGreedy(4, 1, WithSource(SeedSource(3)))
	s.Update(0, 1)
	counts := make([]int, 4)
	const n = 40000
	for i := 0; i < n; i++ {
		counts[s.SelectArm()]++
	}
	for arm, c := range counts {
		if frac := float64(c) / n; math.Abs(frac-0.25) > 0.02 {
			t.Errorf("arm %d: frequency %.3f, want ~0.25", arm, frac)
		}
	}
}

func TestEpsilonGreedyAnnealing_EpsilonDecays(t *testing.T) {
	s, _ := NewEpsilonGreedyAnnealing(2, DefaultAnnealingFactor, WithSource(SeedSource(1)))
	first := s.Epsilon()
	if first <= 1 {
		t.Errorf("expected epsilon above 1 before any pull, got %v", first)
	}

	prev := first
	for i := 0; i < 100; i++ {
		s.Update(i%2, 1)
		eps := s.Epsilon()
		if eps >= prev {
			t.Fatalf("epsilon did not decrease at pull %d: %v >= %v", i+1, eps, prev)
		}
		prev = eps
	}
	want := 1 / math.Log(101+DefaultAnnealingFactor)
	if math.Abs(prev-want) > 1e-12 {
		t.Errorf("epsilon after 100 pulls = %v, want %v", prev, want)
	}
}

func TestEpsilonGreedyAnnealing_ZeroFactorExploresFirst(t *testing.T) {
	s, _ := NewEpsilonGreedyAnnealing(2, 0)
	if !math.IsInf(s.Epsilon(), 1) {
		t.Errorf("expected infinite epsilon at t=1 with zero factor, got %v", s.Epsilon())
	}
}

func TestEpsilonGreedyAnnealing_BreaksTiesRandomly(t *testing.T) {
	s, _ := NewEpsilonGreedyAnnealing(2, DefaultAnnealingFactor, WithSource(SeedSource(11)))
	for i := 0; i < 2000; i++ {
		s.Update(i%2, 1)
	}
	// Both means are 1; exploitation must still spread across arms.
	counts := make([]int, 2)
	for i := 0; i < 4000; i++ {
		counts[s.SelectArm()]++
	}
	if counts[0] < 1500 || counts[1] < 1500 {
		t.Errorf("expected tied arms to share selections, got %v", counts)
	}
}
