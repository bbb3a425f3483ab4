package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/freeeve/banditlab/pkg/bandit"
)

func TestBernoulliDrawsZeroOrOne(t *testing.T) {
	b, err := NewBernoulli(0.3, bandit.SeedSource(1))
	if err != nil {
		t.Fatalf("NewBernoulli: %v", err)
	}
	var sum float64
	const n = 20000
	for range n {
		v := b.Draw()
		if v != 0 && v != 1 {
			t.Fatalf("expected 0 or 1, got %v", v)
		}
		sum += v
	}
	if mean := sum / n; math.Abs(mean-0.3) > 0.02 {
		t.Errorf("expected mean near 0.3, got %v", mean)
	}
	if b.Mean() != 0.3 {
		t.Errorf("expected Mean()=0.3, got %v", b.Mean())
	}
}

func TestBernoulliExtremes(t *testing.T) {
	for _, p := range []float64{0, 1} {
		b, err := NewBernoulli(p, bandit.SeedSource(2))
		if err != nil {
			t.Fatalf("NewBernoulli(%v): %v", p, err)
		}
		for range 100 {
			if v := b.Draw(); v != p {
				t.Fatalf("p=%v: drew %v", p, v)
			}
		}
	}
}

func TestNormalMoments(t *testing.T) {
	src, err := NewNormal(2, 0.5, bandit.SeedSource(3))
	if err != nil {
		t.Fatalf("NewNormal: %v", err)
	}
	var sum, sq float64
	const n = 20000
	for range n {
		v := src.Draw()
		sum += v
		sq += v * v
	}
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)
	if math.Abs(mean-2) > 0.03 {
		t.Errorf("expected mean near 2, got %v", mean)
	}
	if math.Abs(std-0.5) > 0.03 {
		t.Errorf("expected std near 0.5, got %v", std)
	}
}

func TestNormalZeroSigmaIsConstant(t *testing.T) {
	src, err := NewNormal(1.5, 0, bandit.SeedSource(4))
	if err != nil {
		t.Fatalf("NewNormal: %v", err)
	}
	if v := src.Draw(); v != 1.5 {
		t.Errorf("expected 1.5, got %v", v)
	}
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"bernoulli p<0", func() error { _, err := NewBernoulli(-0.1, nil); return err }},
		{"bernoulli p>1", func() error { _, err := NewBernoulli(1.1, nil); return err }},
		{"bernoulli NaN", func() error { _, err := NewBernoulli(math.NaN(), nil); return err }},
		{"normal sigma<0", func() error { _, err := NewNormal(0, -1, nil); return err }},
		{"normal inf mu", func() error { _, err := NewNormal(math.Inf(1), 1, nil); return err }},
		{"unknown kind", func() error { _, err := FromSpec(Spec{Kind: "poisson"}, nil); return err }},
		{"no arms", func() error { _, err := Build(nil, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, bandit.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	specs := []Spec{
		{Kind: KindBernoulli, P: 1},
		{Kind: KindNormal, Mu: -1, Sigma: 0},
		{Kind: KindConstant, Value: 4},
	}
	sources, err := Build(specs, bandit.SeedSource(5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []float64{1, -1, 4}
	for i, s := range sources {
		if got := s.Draw(); got != want[i] {
			t.Errorf("arm %d: expected %v, got %v", i, want[i], got)
		}
	}
}

func TestBuildReportsArmIndex(t *testing.T) {
	_, err := Build([]Spec{{Kind: KindConstant}, {Kind: KindBernoulli, P: 2}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "arm 1:"; err.Error()[:len(want)] != want {
		t.Errorf("expected error to name arm 1, got %q", err)
	}
}

func TestSpecMeanAndBestArm(t *testing.T) {
	specs := []Spec{
		{Kind: KindBernoulli, P: 0.4},
		{Kind: KindNormal, Mu: 0.7, Sigma: 1},
		{Kind: KindConstant, Value: 0.7},
	}
	if m := specs[1].Mean(); m != 0.7 {
		t.Errorf("expected normal mean 0.7, got %v", m)
	}
	if best := BestArm(specs); best != 1 {
		t.Errorf("expected first best arm 1, got %d", best)
	}
}

func TestSeededSourcesRepeat(t *testing.T) {
	draw := func() []float64 {
		s, _ := NewBernoulli(0.5, bandit.SeedSource(9))
		out := make([]float64, 50)
		for i := range out {
			out[i] = s.Draw()
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
