// Package sim runs bandit strategies against reward sources and records
// every trial, optionally stopping a replication once its posterior has
// converged.
package sim

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/pkg/bandit"
	"github.com/freeeve/banditlab/pkg/reward"
)

// Config configures one harness invocation.
type Config struct {
	Horizon      int             // max trials per replication
	Replications int             // number of independent replications
	Stopping     *StoppingConfig // nil disables early termination
	Observer     Observer        // optional progress sink
}

// TrialRecord is one trial's outcome. Alpha and Beta are copies taken after
// the trial's update and are never aliased with strategy state.
type TrialRecord struct {
	Replication      int       `json:"replication"`
	Trial            int       `json:"trial"`
	Arm              int       `json:"arm"`
	Reward           float64   `json:"reward"`
	CumulativeReward float64   `json:"cumulative_reward"`
	Alpha            []float64 `json:"alpha"`
	Beta             []float64 `json:"beta"`
}

// ReplicationSummary describes how a replication ended.
type ReplicationSummary struct {
	Replication           int     `json:"replication"`
	Trials                int     `json:"trials"`
	CumulativeReward      float64 `json:"cumulative_reward"`
	StoppedEarly          bool    `json:"stopped_early"`
	BestArm               int     `json:"best_arm"`
	OptimalArmProbability float64 `json:"optimal_arm_probability,omitempty"`
}

// Observer receives records as they are produced. Records share their
// Alpha/Beta slices with the Result and must not be modified.
type Observer interface {
	ObserveTrial(rec TrialRecord)
	ObserveReplication(sum ReplicationSummary)
}

// Result holds the seven index-aligned output sequences plus one summary per
// replication.
type Result struct {
	Replications      []int       `json:"replications"`
	Trials            []int       `json:"trials"`
	ChosenArms        []int       `json:"chosen_arms"`
	Rewards           []float64   `json:"rewards"`
	CumulativeRewards []float64   `json:"cumulative_rewards"`
	Alphas            [][]float64 `json:"alphas"`
	Betas             [][]float64 `json:"betas"`

	Summaries []ReplicationSummary `json:"summaries"`
}

func newResult(capacity int) *Result {
	return &Result{
		Replications:      make([]int, 0, capacity),
		Trials:            make([]int, 0, capacity),
		ChosenArms:        make([]int, 0, capacity),
		Rewards:           make([]float64, 0, capacity),
		CumulativeRewards: make([]float64, 0, capacity),
		Alphas:            make([][]float64, 0, capacity),
		Betas:             make([][]float64, 0, capacity),
	}
}

func (r *Result) append(rec TrialRecord) {
	r.Replications = append(r.Replications, rec.Replication)
	r.Trials = append(r.Trials, rec.Trial)
	r.ChosenArms = append(r.ChosenArms, rec.Arm)
	r.Rewards = append(r.Rewards, rec.Reward)
	r.CumulativeRewards = append(r.CumulativeRewards, rec.CumulativeReward)
	r.Alphas = append(r.Alphas, rec.Alpha)
	r.Betas = append(r.Betas, rec.Beta)
}

// Len returns the number of recorded trials.
func (r *Result) Len() int { return len(r.Trials) }

// Record reassembles the i-th trial.
func (r *Result) Record(i int) TrialRecord {
	return TrialRecord{
		Replication:      r.Replications[i],
		Trial:            r.Trials[i],
		Arm:              r.ChosenArms[i],
		Reward:           r.Rewards[i],
		CumulativeReward: r.CumulativeRewards[i],
		Alpha:            r.Alphas[i],
		Beta:             r.Betas[i],
	}
}

// Records returns every trial in order.
func (r *Result) Records() []TrialRecord {
	out := make([]TrialRecord, r.Len())
	for i := range out {
		out[i] = r.Record(i)
	}
	return out
}

// EarlyStops counts replications ended by the stopping rule.
func (r *Result) EarlyStops() int {
	n := 0
	for _, s := range r.Summaries {
		if s.StoppedEarly {
			n++
		}
	}
	return n
}

func (c Config) validate(nArms int) error {
	if c.Horizon < 1 {
		return bandit.InvalidConfig("simulation", "horizon", fmt.Sprintf("must be positive, got %d", c.Horizon))
	}
	if c.Replications < 1 {
		return bandit.InvalidConfig("simulation", "replications", fmt.Sprintf("must be positive, got %d", c.Replications))
	}
	if nArms < 1 {
		return bandit.InvalidConfig("simulation", "arms", "at least one reward source is required")
	}
	if c.Stopping != nil {
		return c.Stopping.Validate()
	}
	return nil
}

// Run plays cfg.Replications replications of up to cfg.Horizon trials each.
// Early termination only applies to strategies implementing
// bandit.PosteriorSampler; for others the stopping config is ignored.
func Run(strategy bandit.Strategy, sources []reward.Source, cfg Config) (*Result, error) {
	if err := cfg.validate(len(sources)); err != nil {
		return nil, err
	}
	if n := len(strategy.Stats()); n != len(sources) {
		return nil, bandit.InvalidConfig("simulation", "arms",
			fmt.Sprintf("strategy has %d arms but %d reward sources were given", n, len(sources)))
	}

	stopping := cfg.Stopping
	sampler, canSample := strategy.(bandit.PosteriorSampler)
	if stopping != nil && !canSample {
		log.Warn().Str("strategy", strategy.Name()).Msg("Strategy does not sample a posterior; early stopping disabled")
		stopping = nil
	}

	result := newResult(cfg.Horizon * cfg.Replications)
	for rep := 0; rep < cfg.Replications; rep++ {
		summary, err := runReplication(rep, strategy, sampler, sources, cfg, stopping, result)
		if err != nil {
			return nil, err
		}
		result.Summaries = append(result.Summaries, summary)
		if cfg.Observer != nil {
			cfg.Observer.ObserveReplication(summary)
		}
	}
	return result, nil
}

func runReplication(
	rep int,
	strategy bandit.Strategy,
	sampler bandit.PosteriorSampler,
	sources []reward.Source,
	cfg Config,
	stopping *StoppingConfig,
	result *Result,
) (ReplicationSummary, error) {
	strategy.Reset()

	var st *stoppingState
	if stopping != nil {
		st = newStoppingState()
	}

	summary := ReplicationSummary{Replication: rep}
	cumulative := 0.0
	for t := 0; t < cfg.Horizon; t++ {
		var (
			arm                   int
			samples               []float64
			priorAlpha, priorBeta []float64
		)
		if st != nil {
			priorAlpha, priorBeta = sampler.Posterior()
			arm, samples = sampler.SelectWithSamples()
		} else {
			arm = strategy.SelectArm()
		}
		if arm < 0 || arm >= len(sources) {
			return summary, fmt.Errorf("%s selected arm %d outside [0,%d)", strategy.Name(), arm, len(sources))
		}

		r := sources[arm].Draw()
		if t == 0 {
			cumulative = r
		} else {
			cumulative += r
		}
		strategy.Update(arm, r)

		alpha, beta := snapshot(strategy)
		rec := TrialRecord{
			Replication:      rep,
			Trial:            t,
			Arm:              arm,
			Reward:           r,
			CumulativeReward: cumulative,
			Alpha:            alpha,
			Beta:             beta,
		}
		result.append(rec)
		summary.Trials++
		summary.CumulativeReward = cumulative
		if cfg.Observer != nil {
			cfg.Observer.ObserveTrial(rec)
		}

		if st != nil && t >= stopping.MinTrials {
			if st.evaluate(*stopping, sampler, priorAlpha, priorBeta, samples) {
				summary.StoppedEarly = true
				log.Debug().Int("replication", rep).Int("trials", summary.Trials).
					Float64("probability", st.probability).Int("bestArm", st.bestArm).
					Msg("Replication stopped early")
				break
			}
		}
	}

	alpha, beta := snapshot(strategy)
	summary.BestArm = expectedBestArm(alpha, beta)
	if st != nil {
		summary.OptimalArmProbability = st.probability
	}
	return summary, nil
}

// snapshot copies the alpha and beta vectors out of the strategy.
func snapshot(s bandit.Strategy) (alpha, beta []float64) {
	stats := s.Stats()
	alpha = make([]float64, len(stats))
	beta = make([]float64, len(stats))
	for i, st := range stats {
		alpha[i] = st.Alpha
		beta[i] = st.Beta
	}
	return alpha, beta
}
