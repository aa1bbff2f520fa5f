package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the QueueItem state machine:
// pending -> processing -> {completed, failed}, with reset_stale the sole
// exception that maps a stuck processing row back to pending.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// DefaultMaxAttempts is the default ceiling carried on every QueueItem. It
// is never exercised by the orchestrator (no intra-run retry is performed);
// it exists for a future retry policy, per spec.
const DefaultMaxAttempts = 3

// QueueItem is a URL awaiting fetch within a run.
// Invariant: within a single RunID, URLHash is unique.
// Invariant: Status == processing <=> WorkerID != nil && ClaimedAt != nil.
type QueueItem struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	URL         string
	URLHash     string
	Depth       int
	Priority    int
	Status      QueueStatus
	WorkerID    *string
	ClaimedAt   *time.Time
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
}

// QueueItemCreate is the payload for enqueuing a new URL. It carries no
// status/claim fields: those are assigned by the queue repository at
// insert time (status=pending).
type QueueItemCreate struct {
	RunID       uuid.UUID
	URL         string
	URLHash     string
	Depth       int
	Priority    int
	MaxAttempts int
}
