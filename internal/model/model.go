package model

import (
	"encoding/json"
	"time"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one execution of an experiment.
type Run struct {
	ID              string           `json:"id"`
	Experiment      string           `json:"experiment"`
	Strategy        string           `json:"strategy"`
	Arms            int              `json:"arms"`
	Horizon         int              `json:"horizon"`
	Replications    int              `json:"replications"`
	Seed            *uint64          `json:"seed,omitempty"`
	Config          json.RawMessage  `json:"config"`
	Status          string           `json:"status"` // running, completed, failed
	TotalTrials     int              `json:"total_trials"`
	EarlyStops      int              `json:"early_stops"`
	MeanFinalReward float64          `json:"mean_final_reward"`
	BestArm         int              `json:"best_arm"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Results         []ReplicationRow `json:"results,omitempty"`
}

// ReplicationRow summarises one replication of a run.
type ReplicationRow struct {
	RunID                 string  `json:"run_id"`
	Replication           int     `json:"replication"`
	Trials                int     `json:"trials"`
	CumulativeReward      float64 `json:"cumulative_reward"`
	StoppedEarly          bool    `json:"stopped_early"`
	BestArm               int     `json:"best_arm"`
	OptimalArmProbability float64 `json:"optimal_arm_probability"`
}

// TrialRow is one persisted trial with the posterior snapshot after it.
type TrialRow struct {
	RunID            string    `json:"run_id"`
	Replication      int       `json:"replication"`
	Trial            int       `json:"trial"`
	Arm              int       `json:"arm"`
	Reward           float64   `json:"reward"`
	CumulativeReward float64   `json:"cumulative_reward"`
	Alpha            []float64 `json:"alpha"`
	Beta             []float64 `json:"beta"`
}

// LeaderboardEntry ranks a strategy within an experiment by its best mean
// final cumulative reward.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
}
