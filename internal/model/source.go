// Package model defines the four persistent entities of the crawl engine:
// CrawlSource, CrawlRun, QueueItem and CrawledPage. The process-local
// robots state is not modelled here; it lives in internal/robots as
// robots.Handler. All persistent entities carry an opaque UUID identifier and
// a creation timestamp; optional fields are expressed as pointers rather
// than sentinel zero values.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceType distinguishes a one-page fetch from a full-domain crawl.
type SourceType string

const (
	SourceTypeSinglePage SourceType = "single_page"
	SourceTypeFullDomain SourceType = "full_domain"
)

// SourceStatus tracks whether a source is eligible for scheduled runs.
// The engine itself never transitions this field; a scheduler (out of
// scope) owns it.
type SourceStatus string

const (
	SourceStatusActive SourceStatus = "active"
	SourceStatusPaused SourceStatus = "paused"
)

// CrawlSource is the crawl target: a seed URL plus crawl-type metadata.
// Invariant: Domain == host(EntryURL).
type CrawlSource struct {
	ID        uuid.UUID
	EntryURL  string
	Domain    string
	Type      SourceType
	Status    SourceStatus
	MaxPages  *int
	Frequency string
	NextRunAt *time.Time
	CreatedAt time.Time
}
