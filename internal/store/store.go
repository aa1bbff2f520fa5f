// Package store defines the repository interfaces the orchestrator uses to
// persist crawl sources, runs, queue items, and crawled pages, independent
// of the concrete datastore.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oakhollow/domaincrawl/internal/model"
)

// SourceRepository manages crawl sources: the durable record of a domain or
// page the engine has been asked to crawl.
type SourceRepository interface {
	Create(ctx context.Context, source model.CrawlSource) (model.CrawlSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.CrawlSource, error)
	List(ctx context.Context, status *model.SourceStatus) ([]model.CrawlSource, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.SourceStatus) error
	UpdateNextRun(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error
	DueSources(ctx context.Context) ([]model.CrawlSource, error)
}

// RunRepository manages crawl runs: one execution of a source's crawl.
type RunRepository interface {
	Create(ctx context.Context, run model.CrawlRun) (model.CrawlRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.CrawlRun, error)
	ListBySource(ctx context.Context, sourceID uuid.UUID) ([]model.CrawlRun, error)
	MarkStarted(ctx context.Context, id uuid.UUID) error
	UpdateStats(ctx context.Context, id uuid.UUID, pagesFound, pagesCrawled, pagesFailed int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, runErr *string) error
}

// QueueRepository manages the durable, shared work queue of URLs awaiting
// fetch, claimed via an atomic SQL routine so that multiple workers (or
// multiple processes) never claim the same row twice.
type QueueRepository interface {
	Add(ctx context.Context, item model.QueueItemCreate) (model.QueueItem, error)
	AddBatch(ctx context.Context, items []model.QueueItemCreate) ([]model.QueueItem, error)
	// Claim atomically claims up to limit pending items for runID, assigning
	// them to workerID and marking them processing.
	Claim(ctx context.Context, runID uuid.UUID, workerID string, limit int) ([]model.QueueItem, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errMsg *string) error
	// ResetStale reclaims items that have sat in processing for longer than
	// timeout, returning every one of them to pending. There is no
	// intra-run retry policy, so max_attempts has no effect here. Returns
	// the number of items reset.
	ResetStale(ctx context.Context, timeout time.Duration) (int, error)
	PendingCount(ctx context.Context, runID uuid.UUID) (int, error)
}

// PageRepository records the outcome of every fetch attempt.
type PageRepository interface {
	Create(ctx context.Context, page model.CrawledPage) (model.CrawledPage, error)
	CreateBatch(ctx context.Context, pages []model.CrawledPage) ([]model.CrawledPage, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]model.CrawledPage, error)
	LatestByURL(ctx context.Context, sourceID uuid.UUID, urlHash string) (*model.CrawledPage, error)
}

// ErrNotFound is returned by GetByID-style lookups that find no row.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// ErrDuplicateQueueItem is returned by Add/AddBatch when a URL is already
// queued for the run; the (run_id, url_hash) unique constraint is the
// datastore's authoritative dedup mechanism.
var ErrDuplicateQueueItem = errDuplicateQueueItem{}

type errDuplicateQueueItem struct{}

func (errDuplicateQueueItem) Error() string { return "queue item already exists for this run and url" }
