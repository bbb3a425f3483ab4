package repository

import (
	"context"
	"time"

	"github.com/freeeve/banditlab/internal/model"
)

// RunRepository persists runs, their replication summaries and trial rows.
// Find methods return nil, nil when nothing matches.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	Complete(ctx context.Context, run *model.Run, results []model.ReplicationRow) error
	Fail(ctx context.Context, runID, reason string) error
	FailStale(ctx context.Context, startedBefore time.Time, reason string) (int64, error)
	InsertTrials(ctx context.Context, runID string, trials []model.TrialRow) error
	FindByID(ctx context.Context, id string) (*model.Run, error)
	ListRecent(ctx context.Context, limit int) ([]model.Run, error)
	ListTrials(ctx context.Context, runID string, replication int) ([]model.TrialRow, error)
}

// RunCache holds completed run summaries, the recent-run list and
// per-experiment leaderboards.
type RunCache interface {
	SetRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	PushRecent(ctx context.Context, runID string) error
	RecentIDs(ctx context.Context, limit int) ([]string, error)
	RecordScore(ctx context.Context, experiment, strategy string, score float64) error
	Leaderboard(ctx context.Context, experiment string, limit int) ([]model.LeaderboardEntry, error)
}
