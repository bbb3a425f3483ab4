package service

// Broadcaster sends run progress events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastRunEvent(runID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for the CLI and tests.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastRunEvent(string, string, any) {}

// Event types sent for a run.
const (
	EventRunStarted          = "run_started"
	EventTrial               = "trial"
	EventReplicationFinished = "replication_finished"
	EventRunCompleted        = "run_completed"
	EventRunFailed           = "run_failed"
)
