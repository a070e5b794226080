package publisher

import "context"

// Event kinds carried on the stream
const (
	KindSnapshot   = "snapshot"
	KindRunSummary = "run_summary"
)

// Publisher represents a service for publishing run events
type Publisher interface {
	// Publish appends one event of the given kind for a run. Payload is JSON.
	Publish(ctx context.Context, kind, runID string, payload []byte) error

	// Close closes the publisher connection
	Close() error
}
