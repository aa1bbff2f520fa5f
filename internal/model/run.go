package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the CrawlRun state machine:
// pending -> running -> {completed, failed} (terminal).
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CrawlRun is one execution attempt against a CrawlSource.
// Invariant: PagesFound == PagesCrawled + PagesFailed.
// Invariant: CompletedAt >= StartedAt when both are set.
type CrawlRun struct {
	ID           uuid.UUID
	SourceID     uuid.UUID
	Status       RunStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	PagesFound   int
	PagesCrawled int
	PagesFailed  int
	Error        *string
	CreatedAt    time.Time
}

// IsTerminal reports whether the run has reached a terminal status.
func (r *CrawlRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
