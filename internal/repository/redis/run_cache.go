package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/banditlab/internal/model"
)

const (
	recentKey    = "runs:recent"
	recentLength = 100
	runTTL       = 24 * time.Hour
)

func runKey(runID string) string              { return "run:" + runID }
func leaderboardKey(experiment string) string { return "leaderboard:" + experiment }

// SetRun caches a run summary for runTTL.
func (c *Client) SetRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return c.rdb.Set(ctx, runKey(run.ID), data, runTTL).Err()
}

// GetRun returns the cached run, or nil on a miss.
func (c *Client) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	data, err := c.rdb.Get(ctx, runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// PushRecent records runID at the head of the recent list, keeping it bounded.
func (c *Client) PushRecent(ctx context.Context, runID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.LRem(ctx, recentKey, 0, runID)
	pipe.LPush(ctx, recentKey, runID)
	pipe.LTrim(ctx, recentKey, 0, recentLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent run: %w", err)
	}
	return nil
}

// RecentIDs returns up to limit run IDs, newest first.
func (c *Client) RecentIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return c.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
}

// RecordScore keeps the best score seen for strategy within experiment.
func (c *Client) RecordScore(ctx context.Context, experiment, strategy string, score float64) error {
	return c.rdb.ZAddArgs(ctx, leaderboardKey(experiment), redis.ZAddArgs{
		GT:      true,
		Members: []redis.Z{{Score: score, Member: strategy}},
	}).Err()
}

// Leaderboard returns the top strategies for experiment, best first.
func (c *Client) Leaderboard(ctx context.Context, experiment string, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardKey(experiment), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]model.LeaderboardEntry, len(zs))
	for i, z := range zs {
		name, _ := z.Member.(string)
		out[i] = model.LeaderboardEntry{Rank: i + 1, Strategy: name, Score: z.Score}
	}
	return out, nil
}
