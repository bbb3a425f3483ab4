package bandit

import "math/rand/v2"

// Option configures optional strategy behavior.
type Option func(*options)

type options struct {
	src rand.Source
}

// WithSource sets the random source a strategy draws from. Tests pass a
// seeded or scripted source to make selection reproducible.
func WithSource(src rand.Source) Option {
	return func(o *options) { o.src = src }
}

// SeedSource returns a deterministic PCG source for reproducible runs.
func SeedSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// newRNG resolves options into a *rand.Rand and the source backing it. The
// source is shared with gonum distributions so one seed drives every draw.
func newRNG(opts []Option) (*rand.Rand, rand.Source) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		o.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return rand.New(o.src), o.src
}

// argmaxRandomTie returns the index of the largest value, choosing uniformly
// among ties.
func argmaxRandomTie(rng *rand.Rand, values []float64) int {
	best := values[0]
	ties := 1
	idx := 0
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > best:
			best = values[i]
			idx = i
			ties = 1
		case values[i] == best:
			// reservoir sampling over the tied maxima
			ties++
			if rng.IntN(ties) == 0 {
				idx = i
			}
		}
	}
	return idx
}

// drawCumulative walks the cumulative distribution until it passes a uniform
// threshold. Falls back to the last arm when rounding leaves the sum below 1.
func drawCumulative(rng *rand.Rand, probs []float64) int {
	threshold := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += p
		if cum > threshold {
			return i
		}
	}
	return len(probs) - 1
}
