//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/banditlab/internal/model"
	"github.com/freeeve/banditlab/internal/testutil"
)

func setup(t *testing.T) (*RunRepo, *sql.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	return NewRunRepo(db), db
}

// seeded inserts a running fixture run without going through Create.
func seeded(t *testing.T, db *sql.DB) *model.Run {
	t.Helper()
	run := testutil.NewRun()
	testutil.SeedRun(t, db, run)
	return run
}

func TestRunCreateAndFind(t *testing.T) {
	repo, _ := setup(t)
	run := testutil.NewRun()
	run.Status = ""
	run.CreatedAt = time.Time{}
	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != model.RunRunning {
		t.Fatalf("expected running status, got %s", run.Status)
	}
	if run.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	got, err := repo.FindByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Seed == nil || *got.Seed != *run.Seed {
		t.Fatalf("seed round-trip failed: %v", got.Seed)
	}
	if got.Strategy != "thompson" || got.Arms != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
}

func TestRunFindMissing(t *testing.T) {
	repo, _ := setup(t)
	got, err := repo.FindByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing run")
	}
}

func TestRunComplete(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()
	run := seeded(t, db)

	run.TotalTrials = 5
	run.EarlyStops = 1
	run.MeanFinalReward = 1.5
	run.BestArm = 1
	results := []model.ReplicationRow{
		{RunID: run.ID, Replication: 0, Trials: 3, CumulativeReward: 2, BestArm: 1},
		{RunID: run.ID, Replication: 1, Trials: 2, CumulativeReward: 1, StoppedEarly: true, BestArm: 1, OptimalArmProbability: 0.97},
	}
	if err := repo.Complete(ctx, run, results); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected finished_at")
	}

	got, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != model.RunCompleted || got.EarlyStops != 1 {
		t.Fatalf("unexpected run %+v", got)
	}
	if len(got.Results) != 2 || !got.Results[1].StoppedEarly || got.Results[1].OptimalArmProbability != 0.97 {
		t.Fatalf("unexpected replications %+v", got.Results)
	}
}

func TestRunFail(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()
	run := seeded(t, db)

	if err := repo.Fail(ctx, run.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := repo.FindByID(ctx, run.ID)
	if got.Status != model.RunFailed || got.Error != "boom" {
		t.Fatalf("unexpected run %+v", got)
	}
}

func TestInsertTrialsCopiesArrays(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()
	run := seeded(t, db)

	trials := []model.TrialRow{
		{Replication: 0, Trial: 0, Arm: 1, Reward: 1, CumulativeReward: 1, Alpha: []float64{1, 2}, Beta: []float64{1, 1}},
		{Replication: 0, Trial: 1, Arm: 0, Reward: 0, CumulativeReward: 1, Alpha: []float64{1, 2}, Beta: []float64{2, 1}},
		{Replication: 1, Trial: 0, Arm: 0, Reward: 1, CumulativeReward: 1, Alpha: []float64{2, 1}, Beta: []float64{1, 1}},
	}
	if err := repo.InsertTrials(ctx, run.ID, trials); err != nil {
		t.Fatalf("insert trials: %v", err)
	}

	got, err := repo.ListTrials(ctx, run.ID, 0)
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(got))
	}
	if got[1].Beta[0] != 2 || got[1].Alpha[1] != 2 || got[1].RunID != run.ID {
		t.Fatalf("unexpected trial %+v", got[1])
	}
}

func TestListRecent(t *testing.T) {
	repo, db := setup(t)
	older := testutil.NewRun()
	older.CreatedAt = time.Now().Add(-time.Hour)
	testutil.SeedRun(t, db, older)
	newer := seeded(t, db)

	runs, err := repo.ListRecent(context.Background(), 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != newer.ID {
		t.Fatalf("expected only %s, got %+v", newer.ID, runs)
	}
}

func TestListTrialsFiltersReplication(t *testing.T) {
	repo, db := setup(t)
	run := testutil.NewRun()
	testutil.SeedRun(t, db, run,
		model.TrialRow{Replication: 0, Trial: 0, Arm: 0, Reward: 1, CumulativeReward: 1, Alpha: []float64{2, 1}, Beta: []float64{1, 1}},
		model.TrialRow{Replication: 1, Trial: 0, Arm: 1, Reward: 0, CumulativeReward: 0, Alpha: []float64{1, 1}, Beta: []float64{1, 2}},
	)

	got, err := repo.ListTrials(context.Background(), run.ID, 1)
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(got) != 1 || got[0].Arm != 1 || got[0].Beta[1] != 2 {
		t.Fatalf("unexpected trials %+v", got)
	}
}

func TestFailStale(t *testing.T) {
	repo, db := setup(t)
	ctx := context.Background()
	stale := testutil.NewRun()
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	testutil.SeedRun(t, db, stale)
	fresh := seeded(t, db)
	done := testutil.NewRun()
	done.Status = model.RunCompleted
	done.CreatedAt = stale.CreatedAt
	testutil.SeedRun(t, db, done)

	n, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), "interrupted")
	if err != nil {
		t.Fatalf("fail stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale run, got %d", n)
	}
	got, _ := repo.FindByID(ctx, stale.ID)
	if got.Status != model.RunFailed || got.Error != "interrupted" {
		t.Fatalf("unexpected run %+v", got)
	}
	for _, id := range []string{fresh.ID, done.ID} {
		if got, _ := repo.FindByID(ctx, id); got.Status == model.RunFailed {
			t.Fatalf("run %s should not be reaped", id)
		}
	}
}
