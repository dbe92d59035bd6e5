// Package events publishes run lifecycle notifications for downstream
// consumers (dashboards, notification bots).
package events

import (
	"context"
	"time"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// Event types.
const (
	TypeRunStarted  = "run_started"
	TypeRunFinished = "run_finished"
)

// Event is one run lifecycle notification.
type Event struct {
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Kind      admissions.RunKind     `json:"kind"`
	Status    admissions.RunStatus   `json:"status,omitempty"`
	Counters  admissions.RunCounters `json:"counters"`
	Timestamp time.Time              `json:"timestamp"`
}

// Publisher pushes events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
