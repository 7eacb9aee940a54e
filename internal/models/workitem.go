package models

import "time"

// WorkItem carries one envelope-plus-items payload from the ingestion queue
// to the persistence worker. It has no identity of its own and lives only
// between dequeue and the persist attempt.
type WorkItem struct {
	Envelope   *Envelope
	EnqueuedAt time.Time
}

// NewWorkItem wraps an envelope for queueing.
func NewWorkItem(env *Envelope) *WorkItem {
	return &WorkItem{
		Envelope:   env,
		EnqueuedAt: time.Now().UTC(),
	}
}
