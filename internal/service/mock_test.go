package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/banditlab/internal/model"
)

type mockRunRepo struct {
	mu      sync.Mutex
	runs    map[string]*model.Run
	trials  map[string][]model.TrialRow
	failErr error
	stale   time.Time
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{
		runs:   make(map[string]*model.Run),
		trials: make(map[string][]model.TrialRow),
	}
}

func (m *mockRunRepo) Create(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Status = model.RunRunning
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunRepo) Complete(_ context.Context, run *model.Run, results []model.ReplicationRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	now := time.Now()
	run.Status = model.RunCompleted
	run.FinishedAt = &now
	run.Results = results
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunRepo) Fail(_ context.Context, runID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[runID]; ok {
		r.Status = model.RunFailed
		r.Error = reason
	}
	return nil
}

func (m *mockRunRepo) FailStale(_ context.Context, before time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = before
	var n int64
	for _, r := range m.runs {
		if r.Status == model.RunRunning && r.CreatedAt.Before(before) {
			r.Status = model.RunFailed
			r.Error = reason
			n++
		}
	}
	return n, nil
}

func (m *mockRunRepo) InsertTrials(_ context.Context, runID string, trials []model.TrialRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[runID] = append(m.trials[runID], trials...)
	return nil
}

func (m *mockRunRepo) FindByID(_ context.Context, id string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRunRepo) ListRecent(_ context.Context, limit int) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRunRepo) ListTrials(_ context.Context, runID string, replication int) ([]model.TrialRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrialRow
	for _, t := range m.trials[runID] {
		if t.Replication == replication {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockRunCache struct {
	runs    map[string]*model.Run
	recent  []string
	scores  map[string]map[string]float64
	failAll bool
}

func newMockRunCache() *mockRunCache {
	return &mockRunCache{
		runs:   make(map[string]*model.Run),
		scores: make(map[string]map[string]float64),
	}
}

var errCacheDown = errors.New("cache down")

func (m *mockRunCache) SetRun(_ context.Context, run *model.Run) error {
	if m.failAll {
		return errCacheDown
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunCache) GetRun(_ context.Context, id string) (*model.Run, error) {
	if m.failAll {
		return nil, errCacheDown
	}
	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRunCache) PushRecent(_ context.Context, runID string) error {
	if m.failAll {
		return errCacheDown
	}
	m.recent = append([]string{runID}, m.recent...)
	return nil
}

func (m *mockRunCache) RecentIDs(_ context.Context, limit int) ([]string, error) {
	if len(m.recent) < limit {
		return m.recent, nil
	}
	return m.recent[:limit], nil
}

func (m *mockRunCache) RecordScore(_ context.Context, experiment, strategy string, score float64) error {
	if m.failAll {
		return errCacheDown
	}
	if m.scores[experiment] == nil {
		m.scores[experiment] = make(map[string]float64)
	}
	if prev, ok := m.scores[experiment][strategy]; !ok || score > prev {
		m.scores[experiment][strategy] = score
	}
	return nil
}

func (m *mockRunCache) Leaderboard(_ context.Context, experiment string, limit int) ([]model.LeaderboardEntry, error) {
	var out []model.LeaderboardEntry
	for name, score := range m.scores[experiment] {
		out = append(out, model.LeaderboardEntry{Strategy: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordedEvent struct {
	runID string
	kind  string
	data  any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *mockBroadcaster) BroadcastRunEvent(runID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{runID: runID, kind: eventType, data: data})
}

func (b *mockBroadcaster) count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}
