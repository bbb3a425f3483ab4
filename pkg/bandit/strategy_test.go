package bandit

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

var validParams = Params{
	Epsilon:         0.1,
	AnnealingFactor: DefaultAnnealingFactor,
	Temperature:     0.1,
	Gamma:           0.2,
	Alpha:           0.5,
}

// newAll builds one strategy of every kind, seeded deterministically.
func newAll(t *testing.T, nArms int) []Strategy {
	t.Helper()
	var out []Strategy
	for i, name := range Names() {
		s, err := New(name, nArms, validParams, WithSource(SeedSource(uint64(i+1))))
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		out = append(out, s)
	}
	return out
}

func TestNew_AllNames(t *testing.T) {
	names := Names()
	if len(names) != 8 {
		t.Fatalf("expected 8 strategies, got %d: %v", len(names), names)
	}
	for _, s := range newAll(t, 3) {
		if len(s.Stats()) != 3 {
			t.Errorf("%s: expected 3 arms, got %d", s.Name(), len(s.Stats()))
		}
	}
}

func TestNew_UnknownName(t *testing.T) {
	_, err := New("greedy_plus", 2, validParams)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "name" {
		t.Errorf("expected ConfigError on field name, got %#v", err)
	}
}

func TestConstructors_RejectInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		nArms  int
		params Params
		field  string
	}{
		{NameEpsilonGreedy, 0, validParams, "nArms"},
		{NameEpsilonGreedy, 2, Params{Epsilon: -0.1}, "epsilon"},
		{NameEpsilonGreedy, 2, Params{Epsilon: 1.5}, "epsilon"},
		{NameEpsilonGreedyAnnealing, 2, Params{AnnealingFactor: -1}, "annealingFactor"},
		{NameSoftmax, 2, Params{Temperature: 0}, "temperature"},
		{NameHedge, 2, Params{Temperature: -1}, "temperature"},
		{NameEXP3, 2, Params{Gamma: 0}, "gamma"},
		{NameEXP3, 2, Params{Gamma: 1}, "gamma"},
		{NameUCB1, 0, validParams, "nArms"},
		{NameUCB2, 2, Params{Alpha: 0}, "alpha"},
		{NameThompson, -1, validParams, "nArms"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.field, func(t *testing.T) {
			_, err := New(tt.name, tt.nArms, tt.params)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestUpdate_Bookkeeping(t *testing.T) {
	rewards := [][2]float64{{0, 1}, {1, 0}, {0, 1}, {2, 1}, {0, 0}, {1, 1}, {2, 0}}
	for _, s := range newAll(t, 3) {
		sums := make([]float64, 3)
		counts := make([]int, 3)
		for _, r := range rewards {
			arm := int(r[0])
			s.Update(arm, r[1])
			sums[arm] += r[1]
			counts[arm]++
		}

		stats := s.Stats()
		total := 0
		for i, st := range stats {
			total += st.Pulls
			if st.Pulls != counts[i] {
				t.Errorf("%s arm %d: expected %d pulls, got %d", s.Name(), i, counts[i], st.Pulls)
			}
			want := sums[i] / float64(counts[i])
			if math.Abs(st.Mean-want) > 1e-12 {
				t.Errorf("%s arm %d: expected mean %v, got %v", s.Name(), i, want, st.Mean)
			}
			if st.Alpha+st.Beta != float64(st.Pulls+2) {
				t.Errorf("%s arm %d: alpha+beta=%v, want %d", s.Name(), i, st.Alpha+st.Beta, st.Pulls+2)
			}
		}
		if total != len(rewards) {
			t.Errorf("%s: expected %d total pulls, got %d", s.Name(), len(rewards), total)
		}
	}
}

func TestReset_RestoresFreshState(t *testing.T) {
	for i, name := range Names() {
		fresh, _ := New(name, 4, validParams, WithSource(SeedSource(uint64(i))))
		used, _ := New(name, 4, validParams, WithSource(SeedSource(uint64(i))))

		for trial := 0; trial < 50; trial++ {
			arm := used.SelectArm()
			used.Update(arm, float64(trial%2))
		}
		used.Reset()

		if !reflect.DeepEqual(fresh.Stats(), used.Stats()) {
			t.Errorf("%s: stats after reset differ from fresh: %v vs %v", name, used.Stats(), fresh.Stats())
		}
	}
}

func TestReset_RestoresStrategyLocalState(t *testing.T) {
	exp3, _ := NewEXP3(3, 0.3, WithSource(SeedSource(7)))
	ucb2, _ := NewUCB2(3, 0.5)
	for trial := 0; trial < 40; trial++ {
		exp3.Update(exp3.SelectArm(), 1)
		ucb2.Update(ucb2.SelectArm(), float64(trial%3)/2)
	}
	exp3.Reset()
	ucb2.Reset()

	for i, w := range exp3.Weights() {
		if w != 1 {
			t.Errorf("exp3 weight %d: expected 1 after reset, got %v", i, w)
		}
	}
	phase := ucb2.Phase()
	if !phase.Sweeping || phase.Arm != 0 || phase.NextBoundary != 0 {
		t.Errorf("ucb2 phase not reset: %+v", phase)
	}
	for i, r := range phase.Epochs {
		if r != 0 {
			t.Errorf("ucb2 epoch %d: expected 0 after reset, got %d", i, r)
		}
	}
}

func TestStats_ReturnsCopy(t *testing.T) {
	for _, s := range newAll(t, 2) {
		stats := s.Stats()
		stats[0].Pulls = 99
		stats[0].Alpha = 99
		if s.Stats()[0].Pulls != 0 || s.Stats()[0].Alpha != 1 {
			t.Errorf("%s: Stats() aliased internal state", s.Name())
		}
	}
}

func TestSelectArm_DoesNotMutateStats(t *testing.T) {
	for _, s := range newAll(t, 3) {
		for i := 0; i < 6; i++ {
			s.Update(i%3, float64(i%2))
		}
		before := s.Stats()
		for i := 0; i < 20; i++ {
			s.SelectArm()
		}
		if !reflect.DeepEqual(before, s.Stats()) {
			t.Errorf("%s: SelectArm changed arm statistics", s.Name())
		}
	}
}

func TestPosteriorSamplerCapability(t *testing.T) {
	for _, s := range newAll(t, 2) {
		_, ok := s.(PosteriorSampler)
		if want := s.Name() == NameThompson; ok != want {
			t.Errorf("%s: PosteriorSampler=%v, want %v", s.Name(), ok, want)
		}
	}
}
