package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/freeeve/banditlab/internal/model"
)

// RunRepo handles runs, replications and trials.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Create inserts a run in the running state and fills CreatedAt.
func (r *RunRepo) Create(ctx context.Context, run *model.Run) error {
	var seed sql.NullInt64
	if run.Seed != nil {
		seed = sql.NullInt64{Int64: int64(*run.Seed), Valid: true}
	}
	config := []byte(run.Config)
	if len(config) == 0 {
		config = []byte("{}")
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO runs (id, experiment, strategy, arms, horizon, replications, seed, config, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING status, created_at`,
		run.ID, run.Experiment, run.Strategy, run.Arms, run.Horizon, run.Replications, seed, config, model.RunRunning,
	).Scan(&run.Status, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Complete stores the run totals and its replication summaries in one transaction.
func (r *RunRepo) Complete(ctx context.Context, run *model.Run, results []model.ReplicationRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`UPDATE runs SET status = $2, total_trials = $3, early_stops = $4, mean_final_reward = $5,
		        best_arm = $6, finished_at = now()
		 WHERE id = $1
		 RETURNING status, finished_at`,
		run.ID, model.RunCompleted, run.TotalTrials, run.EarlyStops, run.MeanFinalReward, run.BestArm,
	).Scan(&run.Status, &run.FinishedAt)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	for _, rep := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO replications (run_id, replication, trials, cumulative_reward, stopped_early, best_arm, optimal_arm_probability)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID, rep.Replication, rep.Trials, rep.CumulativeReward, rep.StoppedEarly, rep.BestArm, rep.OptimalArmProbability)
		if err != nil {
			return fmt.Errorf("insert replication %d: %w", rep.Replication, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	run.Results = results
	return nil
}

// Fail marks a run as failed with the given reason.
func (r *RunRepo) Fail(ctx context.Context, runID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = $2, error = $3, finished_at = now() WHERE id = $1`,
		runID, model.RunFailed, reason)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// FailStale marks runs still running since before startedBefore as failed
// and returns how many were updated.
func (r *RunRepo) FailStale(ctx context.Context, startedBefore time.Time, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = now()
		 WHERE status = $3 AND created_at < $4`,
		model.RunFailed, reason, model.RunRunning, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("fail stale runs: %w", err)
	}
	return res.RowsAffected()
}

// InsertTrials bulk-loads trial rows with COPY.
func (r *RunRepo) InsertTrials(ctx context.Context, runID string, trials []model.TrialRow) error {
	if len(trials) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("trials",
		"run_id", "replication", "trial", "arm", "reward", "cumulative_reward", "alpha", "beta"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, t := range trials {
		_, err := stmt.ExecContext(ctx, runID, t.Replication, t.Trial, t.Arm, t.Reward, t.CumulativeReward,
			pq.Array(t.Alpha), pq.Array(t.Beta))
		if err != nil {
			stmt.Close()
			return fmt.Errorf("copy trial %d/%d: %w", t.Replication, t.Trial, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trials: %w", err)
	}
	return nil
}

const runColumns = `id, experiment, strategy, arms, horizon, replications, seed, config, status,
	total_trials, early_stops, mean_final_reward, best_arm, error, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run    model.Run
		seed   sql.NullInt64
		errMsg sql.NullString
		config []byte
	)
	err := row.Scan(&run.ID, &run.Experiment, &run.Strategy, &run.Arms, &run.Horizon, &run.Replications,
		&seed, &config, &run.Status, &run.TotalTrials, &run.EarlyStops, &run.MeanFinalReward, &run.BestArm,
		&errMsg, &run.CreatedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	if seed.Valid {
		s := uint64(seed.Int64)
		run.Seed = &s
	}
	run.Config = config
	run.Error = errMsg.String
	return &run, nil
}

// FindByID returns a run with its replication summaries.
func (r *RunRepo) FindByID(ctx context.Context, id string) (*model.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}

	results, err := r.listReplications(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Results = results
	return run, nil
}

// ListRecent returns the most recent runs without replication detail.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *RunRepo) listReplications(ctx context.Context, runID string) ([]model.ReplicationRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, replication, trials, cumulative_reward, stopped_early, best_arm, optimal_arm_probability
		 FROM replications WHERE run_id = $1 ORDER BY replication`, runID)
	if err != nil {
		return nil, fmt.Errorf("list replications: %w", err)
	}
	defer rows.Close()

	var out []model.ReplicationRow
	for rows.Next() {
		var rep model.ReplicationRow
		if err := rows.Scan(&rep.RunID, &rep.Replication, &rep.Trials, &rep.CumulativeReward,
			&rep.StoppedEarly, &rep.BestArm, &rep.OptimalArmProbability); err != nil {
			return nil, fmt.Errorf("scan replication: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// ListTrials returns the trials of one replication in order.
func (r *RunRepo) ListTrials(ctx context.Context, runID string, replication int) ([]model.TrialRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, replication, trial, arm, reward, cumulative_reward, alpha, beta
		 FROM trials WHERE run_id = $1 AND replication = $2 ORDER BY trial`, runID, replication)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var out []model.TrialRow
	for rows.Next() {
		var t model.TrialRow
		if err := rows.Scan(&t.RunID, &t.Replication, &t.Trial, &t.Arm, &t.Reward, &t.CumulativeReward,
			pq.Array(&t.Alpha), pq.Array(&t.Beta)); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
