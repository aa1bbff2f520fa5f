package model

import (
	"time"

	"github.com/google/uuid"
)

// CrawledPage is the append-only record of one fetch attempt: one row per
// completed or failed attempt within a run. Invariant: Content != nil implies
// ContentHash != nil.
type CrawledPage struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	SourceID    uuid.UUID
	URL         string
	URLHash     string
	StatusCode  *int
	Content     *string
	ContentHash *string
	Error       *string
	CrawledAt   time.Time
}
