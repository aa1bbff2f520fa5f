// Package memstore implements the store interfaces entirely in memory, for
// use in orchestrator unit tests that would otherwise need a live Postgres
// instance.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakhollow/domaincrawl/internal/model"
	"github.com/oakhollow/domaincrawl/internal/store"
)

// Store is an in-memory implementation of every repository interface in
// internal/store, safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	sources map[uuid.UUID]model.CrawlSource
	runs    map[uuid.UUID]model.CrawlRun
	queue   map[uuid.UUID]model.QueueItem
	pages   map[uuid.UUID]model.CrawledPage
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sources: make(map[uuid.UUID]model.CrawlSource),
		runs:    make(map[uuid.UUID]model.CrawlRun),
		queue:   make(map[uuid.UUID]model.QueueItem),
		pages:   make(map[uuid.UUID]model.CrawledPage),
	}
}

// Sources returns a store.SourceRepository backed by this Store.
func (s *Store) Sources() store.SourceRepository { return sourceRepo{s} }

// Runs returns a store.RunRepository backed by this Store.
func (s *Store) Runs() store.RunRepository { return runRepo{s} }

// Queue returns a store.QueueRepository backed by this Store.
func (s *Store) Queue() store.QueueRepository { return queueRepo{s} }

// Pages returns a store.PageRepository backed by this Store.
func (s *Store) Pages() store.PageRepository { return pageRepo{s} }

type sourceRepo struct{ s *Store }

func (r sourceRepo) Create(_ context.Context, src model.CrawlSource) (model.CrawlSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	src.ID = uuid.New()
	src.CreatedAt = time.Now()
	r.s.sources[src.ID] = src
	return src, nil
}

func (r sourceRepo) GetByID(_ context.Context, id uuid.UUID) (model.CrawlSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	src, ok := r.s.sources[id]
	if !ok {
		return model.CrawlSource{}, store.ErrNotFound
	}
	return src, nil
}

func (r sourceRepo) List(_ context.Context, status *model.SourceStatus) ([]model.CrawlSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.CrawlSource
	for _, src := range r.s.sources {
		if status == nil || src.Status == *status {
			out = append(out, src)
		}
	}
	sortSourcesByCreatedAt(out)
	return out, nil
}

func (r sourceRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.SourceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	src, ok := r.s.sources[id]
	if !ok {
		return store.ErrNotFound
	}
	src.Status = status
	r.s.sources[id] = src
	return nil
}

func (r sourceRepo) UpdateNextRun(_ context.Context, id uuid.UUID, nextRunAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	src, ok := r.s.sources[id]
	if !ok {
		return store.ErrNotFound
	}
	src.NextRunAt = &nextRunAt
	r.s.sources[id] = src
	return nil
}

func (r sourceRepo) DueSources(_ context.Context) ([]model.CrawlSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	var out []model.CrawlSource
	for _, src := range r.s.sources {
		if src.Status == model.SourceStatusActive && src.NextRunAt != nil && !src.NextRunAt.After(now) {
			out = append(out, src)
		}
	}
	sortSourcesByCreatedAt(out)
	return out, nil
}

type runRepo struct{ s *Store }

func (r runRepo) Create(_ context.Context, run model.CrawlRun) (model.CrawlRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	r.s.runs[run.ID] = run
	return run, nil
}

func (r runRepo) GetByID(_ context.Context, id uuid.UUID) (model.CrawlRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return model.CrawlRun{}, store.ErrNotFound
	}
	return run, nil
}

func (r runRepo) ListBySource(_ context.Context, sourceID uuid.UUID) ([]model.CrawlRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.CrawlRun
	for _, run := range r.s.runs {
		if run.SourceID == sourceID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r runRepo) MarkStarted(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	run.Status = model.RunStatusRunning
	run.StartedAt = &now
	r.s.runs[id] = run
	return nil
}

func (r runRepo) UpdateStats(_ context.Context, id uuid.UUID, pagesFound, pagesCrawled, pagesFailed int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.PagesFound = pagesFound
	run.PagesCrawled = pagesCrawled
	run.PagesFailed = pagesFailed
	r.s.runs[id] = run
	return nil
}

func (r runRepo) MarkCompleted(_ context.Context, id uuid.UUID, runErr *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Error = runErr
	if runErr != nil {
		run.Status = model.RunStatusFailed
	} else {
		run.Status = model.RunStatusCompleted
	}
	r.s.runs[id] = run
	return nil
}

type queueRepo struct{ s *Store }

func (r queueRepo) Add(_ context.Context, item model.QueueItemCreate) (model.QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.queue {
		if existing.RunID == item.RunID && existing.URLHash == item.URLHash {
			return model.QueueItem{}, store.ErrDuplicateQueueItem
		}
	}

	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}

	q := model.QueueItem{
		ID:          uuid.New(),
		RunID:       item.RunID,
		URL:         item.URL,
		URLHash:     item.URLHash,
		Depth:       item.Depth,
		Priority:    item.Priority,
		Status:      model.QueueStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
	r.s.queue[q.ID] = q
	return q, nil
}

func (r queueRepo) AddBatch(ctx context.Context, items []model.QueueItemCreate) ([]model.QueueItem, error) {
	added := make([]model.QueueItem, 0, len(items))
	for _, item := range items {
		q, err := r.Add(ctx, item)
		if err == store.ErrDuplicateQueueItem {
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, q)
	}
	return added, nil
}

func (r queueRepo) Claim(_ context.Context, runID uuid.UUID, workerID string, limit int) ([]model.QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var candidates []model.QueueItem
	for _, q := range r.s.queue {
		if q.RunID == runID && q.Status == model.QueueStatusPending {
			candidates = append(candidates, q)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	claimed := make([]model.QueueItem, 0, limit)
	now := time.Now()
	for i := 0; i < limit; i++ {
		q := candidates[i]
		q.Status = model.QueueStatusProcessing
		q.WorkerID = &workerID
		q.ClaimedAt = &now
		q.Attempts++
		r.s.queue[q.ID] = q
		claimed = append(claimed, q)
	}
	return claimed, nil
}

func (r queueRepo) Complete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.queue[id]
	if !ok {
		return store.ErrNotFound
	}
	q.Status = model.QueueStatusCompleted
	r.s.queue[id] = q
	return nil
}

func (r queueRepo) Fail(_ context.Context, id uuid.UUID, errMsg *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.queue[id]
	if !ok {
		return store.ErrNotFound
	}
	q.Status = model.QueueStatusFailed
	r.s.queue[id] = q
	return nil
}

func (r queueRepo) ResetStale(_ context.Context, timeout time.Duration) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	reset := 0
	for id, q := range r.s.queue {
		if q.Status != model.QueueStatusProcessing || q.ClaimedAt == nil || !q.ClaimedAt.Before(cutoff) {
			continue
		}
		q.Status = model.QueueStatusPending
		q.WorkerID = nil
		q.ClaimedAt = nil
		r.s.queue[id] = q
		reset++
	}
	return reset, nil
}

func (r queueRepo) PendingCount(_ context.Context, runID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, q := range r.s.queue {
		if q.RunID == runID && q.Status == model.QueueStatusPending {
			n++
		}
	}
	return n, nil
}

type pageRepo struct{ s *Store }

func (r pageRepo) Create(_ context.Context, page model.CrawledPage) (model.CrawledPage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	page.ID = uuid.New()
	page.CrawledAt = time.Now()
	r.s.pages[page.ID] = page
	return page, nil
}

func (r pageRepo) CreateBatch(ctx context.Context, pages []model.CrawledPage) ([]model.CrawledPage, error) {
	created := make([]model.CrawledPage, 0, len(pages))
	for _, page := range pages {
		p, err := r.Create(ctx, page)
		if err != nil {
			return created, err
		}
		created = append(created, p)
	}
	return created, nil
}

func (r pageRepo) ListByRun(_ context.Context, runID uuid.UUID) ([]model.CrawledPage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.CrawledPage
	for _, p := range r.s.pages {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrawledAt.After(out[j].CrawledAt) })
	return out, nil
}

func (r pageRepo) LatestByURL(_ context.Context, sourceID uuid.UUID, urlHash string) (*model.CrawledPage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *model.CrawledPage
	for _, p := range r.s.pages {
		if p.SourceID != sourceID || p.URLHash != urlHash {
			continue
		}
		if latest == nil || p.CrawledAt.After(latest.CrawledAt) {
			pc := p
			latest = &pc
		}
	}
	return latest, nil
}

func sortSourcesByCreatedAt(sources []model.CrawlSource) {
	sort.Slice(sources, func(i, j int) bool { return sources[i].CreatedAt.Before(sources[j].CreatedAt) })
}
