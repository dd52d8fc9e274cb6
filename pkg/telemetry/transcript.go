package telemetry

import (
	"context"
	"sync"

	"botframe/pkg/activity"
)

// TranscriptLogger receives a copy of every activity that flows through a
// turn. Durable transcript stores live outside this module.
type TranscriptLogger interface {
	LogActivity(ctx context.Context, act *activity.Activity) error
}

// MemoryTranscript is an in-memory transcript sink for tests and local runs.
type MemoryTranscript struct {
	mu         sync.Mutex
	activities []*activity.Activity
}

// NewMemoryTranscript builds an empty in-memory transcript.
func NewMemoryTranscript() *MemoryTranscript {
	return &MemoryTranscript{}
}

func (m *MemoryTranscript) LogActivity(_ context.Context, act *activity.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, act)
	return nil
}

// Activities returns a snapshot of the logged activities in arrival order.
func (m *MemoryTranscript) Activities() []*activity.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]*activity.Activity, len(m.activities))
	copy(snapshot, m.activities)
	return snapshot
}
