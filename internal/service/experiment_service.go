package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/internal/config"
	"github.com/freeeve/banditlab/internal/metrics"
	"github.com/freeeve/banditlab/internal/model"
	"github.com/freeeve/banditlab/internal/report"
	"github.com/freeeve/banditlab/internal/repository"
	"github.com/freeeve/banditlab/internal/sim"
	"github.com/freeeve/banditlab/pkg/bandit"
)

var (
	ErrNotFound    = errors.New("run not found")
	ErrNoDatabase  = errors.New("run storage is not configured")
	ErrRunFinished = errors.New("run is not running")
)

// Limits caps the size of experiments accepted by the service. Zero means unlimited.
type Limits struct {
	MaxHorizon      int
	MaxReplications int
}

// Options configures an ExperimentService. Runs and Cache may be nil.
type Options struct {
	Runs        repository.RunRepository
	Cache       repository.RunCache
	Broadcaster Broadcaster
	Limits      Limits
	// KeepTrials stores every trial row, not just replication summaries.
	KeepTrials bool
}

// ExperimentService runs experiments and records their outcomes.
type ExperimentService struct {
	runs        repository.RunRepository
	cache       repository.RunCache
	broadcaster Broadcaster
	limits      Limits
	keepTrials  bool
}

// NewExperimentService creates an ExperimentService.
func NewExperimentService(opts Options) *ExperimentService {
	b := opts.Broadcaster
	if b == nil {
		b = NoopBroadcaster{}
	}
	return &ExperimentService{
		runs:        opts.Runs,
		cache:       opts.Cache,
		broadcaster: b,
		limits:      opts.Limits,
		keepTrials:  opts.KeepTrials,
	}
}

// Outcome is a finished run with the raw harness output and its aggregate.
type Outcome struct {
	Run     *model.Run      `json:"run"`
	Summary *report.Summary `json:"summary"`
	Result  *sim.Result     `json:"-"`
}

func (s *ExperimentService) checkLimits(exp *config.Experiment) error {
	if s.limits.MaxHorizon > 0 && exp.Horizon > s.limits.MaxHorizon {
		return bandit.InvalidConfig("experiment", "horizon", fmt.Sprintf("exceeds limit %d", s.limits.MaxHorizon))
	}
	if s.limits.MaxReplications > 0 && exp.Replications > s.limits.MaxReplications {
		return bandit.InvalidConfig("experiment", "replications", fmt.Sprintf("exceeds limit %d", s.limits.MaxReplications))
	}
	return nil
}

// Prepare validates exp and registers a new run in the running state.
func (s *ExperimentService) Prepare(ctx context.Context, exp *config.Experiment) (*model.Run, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkLimits(exp); err != nil {
		return nil, err
	}
	cfg, err := json.Marshal(exp)
	if err != nil {
		return nil, fmt.Errorf("marshal experiment: %w", err)
	}
	run := &model.Run{
		ID:           uuid.NewString(),
		Experiment:   exp.Name,
		Strategy:     exp.Strategy,
		Arms:         len(exp.Arms),
		Horizon:      exp.Horizon,
		Replications: exp.Replications,
		Seed:         exp.Seed,
		Config:       cfg,
		Status:       model.RunRunning,
		CreatedAt:    time.Now().UTC(),
	}
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// Execute plays the experiment for a prepared run and records the outcome.
func (s *ExperimentService) Execute(ctx context.Context, run *model.Run, exp *config.Experiment) (*Outcome, error) {
	if run.Status != model.RunRunning {
		return nil, ErrRunFinished
	}
	logger := log.With().Str("runId", run.ID).Str("strategy", exp.Strategy).Logger()
	done := metrics.RunStarted(exp.Strategy)

	observer := metrics.Observer(exp.Strategy, newProgress(run.ID, exp.Horizon, s.broadcaster))
	strategy, sources, cfg, err := exp.Build(observer)
	if err != nil {
		s.fail(ctx, run, err, done)
		return nil, err
	}

	s.broadcaster.BroadcastRunEvent(run.ID, EventRunStarted, run)
	logger.Info().Int("horizon", exp.Horizon).Int("replications", exp.Replications).Msg("Run started")

	res, err := sim.Run(strategy, sources, cfg)
	if err != nil {
		s.fail(ctx, run, err, done)
		return nil, err
	}
	summary, err := report.Summarize(res, len(exp.Arms))
	if err != nil {
		s.fail(ctx, run, err, done)
		return nil, err
	}

	results := replicationRows(run.ID, res.Summaries)
	run.TotalTrials = res.Len()
	run.EarlyStops = res.EarlyStops()
	run.MeanFinalReward = meanFinalReward(res.Summaries)
	run.BestArm = modalBestArm(res.Summaries, len(exp.Arms))

	if s.runs != nil {
		if s.keepTrials {
			if err := s.runs.InsertTrials(ctx, run.ID, trialRows(run.ID, res)); err != nil {
				s.fail(ctx, run, err, done)
				return nil, err
			}
		}
		if err := s.runs.Complete(ctx, run, results); err != nil {
			s.fail(ctx, run, err, done)
			return nil, err
		}
	} else {
		now := time.Now().UTC()
		run.Status = model.RunCompleted
		run.FinishedAt = &now
		run.Results = results
	}
	s.cacheRun(ctx, run)

	done(model.RunCompleted)
	s.broadcaster.BroadcastRunEvent(run.ID, EventRunCompleted, run)
	logger.Info().
		Int("trials", run.TotalTrials).
		Int("earlyStops", run.EarlyStops).
		Float64("meanFinalReward", run.MeanFinalReward).
		Msg("Run completed")

	return &Outcome{Run: run, Summary: summary, Result: res}, nil
}

// Run prepares and executes exp in one call.
func (s *ExperimentService) Run(ctx context.Context, exp *config.Experiment) (*Outcome, error) {
	run, err := s.Prepare(ctx, exp)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, run, exp)
}

func (s *ExperimentService) fail(ctx context.Context, run *model.Run, cause error, done func(string)) {
	log.Error().Err(cause).Str("runId", run.ID).Msg("Run failed")
	run.Status = model.RunFailed
	run.Error = cause.Error()
	if s.runs != nil {
		if err := s.runs.Fail(ctx, run.ID, cause.Error()); err != nil {
			log.Error().Err(err).Str("runId", run.ID).Msg("Failed to mark run failed")
		}
	}
	done(model.RunFailed)
	s.broadcaster.BroadcastRunEvent(run.ID, EventRunFailed, map[string]any{"error": cause.Error()})
}

// cacheRun updates the cache; failures are logged and ignored.
func (s *ExperimentService) cacheRun(ctx context.Context, run *model.Run) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("runId", run.ID).Msg("Failed to cache run")
	}
	if err := s.cache.PushRecent(ctx, run.ID); err != nil {
		log.Warn().Err(err).Str("runId", run.ID).Msg("Failed to record recent run")
	}
	if err := s.cache.RecordScore(ctx, run.Experiment, run.Strategy, run.MeanFinalReward); err != nil {
		log.Warn().Err(err).Str("runId", run.ID).Msg("Failed to update leaderboard")
	}
}

// Get returns a run from the cache or the database.
func (s *ExperimentService) Get(ctx context.Context, id string) (*model.Run, error) {
	if s.cache != nil {
		run, err := s.cache.GetRun(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("runId", id).Msg("Run cache lookup failed")
		} else if run != nil {
			return run, nil
		}
	}
	if s.runs == nil {
		return nil, ErrNotFound
	}
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrNotFound
	}
	return run, nil
}

// ListRecent returns the newest runs, from the database when configured and
// otherwise from the cache's recent list.
func (s *ExperimentService) ListRecent(ctx context.Context, limit int) ([]model.Run, error) {
	if s.runs != nil {
		return s.runs.ListRecent(ctx, limit)
	}
	if s.cache == nil {
		return nil, nil
	}
	ids, err := s.cache.RecentIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]model.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.cache.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run != nil {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

// Trials returns the stored trials of one replication.
func (s *ExperimentService) Trials(ctx context.Context, runID string, replication int) ([]model.TrialRow, error) {
	if s.runs == nil {
		return nil, ErrNoDatabase
	}
	rows, err := s.runs.ListTrials(ctx, runID, replication)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// Leaderboard ranks strategies for an experiment name.
func (s *ExperimentService) Leaderboard(ctx context.Context, experiment string, limit int) ([]model.LeaderboardEntry, error) {
	if s.cache == nil {
		return []model.LeaderboardEntry{}, nil
	}
	return s.cache.Leaderboard(ctx, experiment, limit)
}

func replicationRows(runID string, summaries []sim.ReplicationSummary) []model.ReplicationRow {
	rows := make([]model.ReplicationRow, len(summaries))
	for i, s := range summaries {
		rows[i] = model.ReplicationRow{
			RunID:                 runID,
			Replication:           s.Replication,
			Trials:                s.Trials,
			CumulativeReward:      s.CumulativeReward,
			StoppedEarly:          s.StoppedEarly,
			BestArm:               s.BestArm,
			OptimalArmProbability: s.OptimalArmProbability,
		}
	}
	return rows
}

func trialRows(runID string, res *sim.Result) []model.TrialRow {
	rows := make([]model.TrialRow, res.Len())
	for i := range rows {
		rec := res.Record(i)
		rows[i] = model.TrialRow{
			RunID:            runID,
			Replication:      rec.Replication,
			Trial:            rec.Trial,
			Arm:              rec.Arm,
			Reward:           rec.Reward,
			CumulativeReward: rec.CumulativeReward,
			Alpha:            rec.Alpha,
			Beta:             rec.Beta,
		}
	}
	return rows
}

func meanFinalReward(summaries []sim.ReplicationSummary) float64 {
	if len(summaries) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range summaries {
		total += s.CumulativeReward
	}
	return total / float64(len(summaries))
}

// modalBestArm is the arm most replications ended up believing best; ties
// go to the lower index.
func modalBestArm(summaries []sim.ReplicationSummary, nArms int) int {
	votes := make([]int, nArms)
	for _, s := range summaries {
		if s.BestArm >= 0 && s.BestArm < nArms {
			votes[s.BestArm]++
		}
	}
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return best
}
