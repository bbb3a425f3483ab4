package service

import "github.com/freeeve/banditlab/internal/sim"

// maxTrialEvents bounds the trial events sent per replication.
const maxTrialEvents = 50

// progress forwards harness events to a Broadcaster, sampling trials so a
// long horizon does not flood clients.
type progress struct {
	runID       string
	broadcaster Broadcaster
	every       int
}

func newProgress(runID string, horizon int, b Broadcaster) *progress {
	every := horizon / maxTrialEvents
	if every < 1 {
		every = 1
	}
	return &progress{runID: runID, broadcaster: b, every: every}
}

func (p *progress) ObserveTrial(rec sim.TrialRecord) {
	if (rec.Trial+1)%p.every != 0 {
		return
	}
	p.broadcaster.BroadcastRunEvent(p.runID, EventTrial, map[string]any{
		"replication":       rec.Replication,
		"trial":             rec.Trial,
		"arm":               rec.Arm,
		"cumulative_reward": rec.CumulativeReward,
	})
}

func (p *progress) ObserveReplication(s sim.ReplicationSummary) {
	p.broadcaster.BroadcastRunEvent(p.runID, EventReplicationFinished, s)
}
