package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakhollow/domaincrawl/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is a pgx/pgxpool-backed implementation of the repository
// interfaces, talking to a Supabase (or any plain Postgres) database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connString and returns a Postgres store. Callers
// should defer Close.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to datastore: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping datastore: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// ApplySchema runs the embedded schema against the connected database. It is
// idempotent; every statement in schema.sql uses IF NOT EXISTS / OR REPLACE.
func (p *Postgres) ApplySchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Sources returns a SourceRepository backed by this pool.
func (p *Postgres) Sources() SourceRepository { return pgSourceRepo{pool: p.pool} }

// Runs returns a RunRepository backed by this pool.
func (p *Postgres) Runs() RunRepository { return pgRunRepo{pool: p.pool} }

// Queue returns a QueueRepository backed by this pool.
func (p *Postgres) Queue() QueueRepository { return pgQueueRepo{pool: p.pool} }

// Pages returns a PageRepository backed by this pool.
func (p *Postgres) Pages() PageRepository { return pgPageRepo{pool: p.pool} }

type pgSourceRepo struct{ pool *pgxpool.Pool }

func (r pgSourceRepo) Create(ctx context.Context, s model.CrawlSource) (model.CrawlSource, error) {
	row := r.pool.QueryRow(ctx, `
		insert into crawl_sources (entry_url, domain, type, status, max_pages, frequency, next_run_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, entry_url, domain, type, status, max_pages, frequency, next_run_at, created_at`,
		s.EntryURL, s.Domain, s.Type, s.Status, s.MaxPages, s.Frequency, s.NextRunAt)
	return scanSource(row)
}

func (r pgSourceRepo) GetByID(ctx context.Context, id uuid.UUID) (model.CrawlSource, error) {
	row := r.pool.QueryRow(ctx, `
		select id, entry_url, domain, type, status, max_pages, frequency, next_run_at, created_at
		from crawl_sources where id = $1`, id)
	return scanSource(row)
}

func (r pgSourceRepo) List(ctx context.Context, status *model.SourceStatus) ([]model.CrawlSource, error) {
	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = r.pool.Query(ctx, `
			select id, entry_url, domain, type, status, max_pages, frequency, next_run_at, created_at
			from crawl_sources where status = $1 order by created_at`, *status)
	} else {
		rows, err = r.pool.Query(ctx, `
			select id, entry_url, domain, type, status, max_pages, frequency, next_run_at, created_at
			from crawl_sources order by created_at`)
	}
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []model.CrawlSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r pgSourceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SourceStatus) error {
	_, err := r.pool.Exec(ctx, `update crawl_sources set status = $1 where id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	return nil
}

func (r pgSourceRepo) UpdateNextRun(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
	_, err := r.pool.Exec(ctx, `update crawl_sources set next_run_at = $1 where id = $2`, nextRunAt, id)
	if err != nil {
		return fmt.Errorf("update source next run: %w", err)
	}
	return nil
}

func (r pgSourceRepo) DueSources(ctx context.Context) ([]model.CrawlSource, error) {
	rows, err := r.pool.Query(ctx, `
		select id, entry_url, domain, type, status, max_pages, frequency, next_run_at, created_at
		from crawl_sources where status = 'active' and next_run_at <= now()`)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	defer rows.Close()

	var sources []model.CrawlSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func scanSource(row pgx.Row) (model.CrawlSource, error) {
	var s model.CrawlSource
	err := row.Scan(&s.ID, &s.EntryURL, &s.Domain, &s.Type, &s.Status, &s.MaxPages, &s.Frequency, &s.NextRunAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CrawlSource{}, ErrNotFound
	}
	if err != nil {
		return model.CrawlSource{}, fmt.Errorf("scan source: %w", err)
	}
	return s, nil
}

type pgRunRepo struct{ pool *pgxpool.Pool }

func (r pgRunRepo) Create(ctx context.Context, run model.CrawlRun) (model.CrawlRun, error) {
	row := r.pool.QueryRow(ctx, `
		insert into crawl_runs (source_id, status)
		values ($1, $2)
		returning id, source_id, status, started_at, completed_at, pages_found, pages_crawled, pages_failed, error, created_at`,
		run.SourceID, run.Status)
	return scanRun(row)
}

func (r pgRunRepo) GetByID(ctx context.Context, id uuid.UUID) (model.CrawlRun, error) {
	row := r.pool.QueryRow(ctx, `
		select id, source_id, status, started_at, completed_at, pages_found, pages_crawled, pages_failed, error, created_at
		from crawl_runs where id = $1`, id)
	return scanRun(row)
}

func (r pgRunRepo) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]model.CrawlRun, error) {
	rows, err := r.pool.Query(ctx, `
		select id, source_id, status, started_at, completed_at, pages_found, pages_crawled, pages_failed, error, created_at
		from crawl_runs where source_id = $1 order by created_at desc`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r pgRunRepo) MarkStarted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		update crawl_runs set status = 'running', started_at = now() where id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	return nil
}

func (r pgRunRepo) UpdateStats(ctx context.Context, id uuid.UUID, pagesFound, pagesCrawled, pagesFailed int) error {
	_, err := r.pool.Exec(ctx, `
		update crawl_runs set pages_found = $1, pages_crawled = $2, pages_failed = $3 where id = $4`,
		pagesFound, pagesCrawled, pagesFailed, id)
	if err != nil {
		return fmt.Errorf("update run stats: %w", err)
	}
	return nil
}

func (r pgRunRepo) MarkCompleted(ctx context.Context, id uuid.UUID, runErr *string) error {
	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	_, err := r.pool.Exec(ctx, `
		update crawl_runs set status = $1, completed_at = now(), error = $2 where id = $3`,
		status, runErr, id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return nil
}

func scanRun(row pgx.Row) (model.CrawlRun, error) {
	var run model.CrawlRun
	err := row.Scan(&run.ID, &run.SourceID, &run.Status, &run.StartedAt, &run.CompletedAt,
		&run.PagesFound, &run.PagesCrawled, &run.PagesFailed, &run.Error, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CrawlRun{}, ErrNotFound
	}
	if err != nil {
		return model.CrawlRun{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

type pgQueueRepo struct{ pool *pgxpool.Pool }

func (r pgQueueRepo) Add(ctx context.Context, item model.QueueItemCreate) (model.QueueItem, error) {
	row := r.pool.QueryRow(ctx, `
		insert into crawl_queue (run_id, url, url_hash, depth, priority, max_attempts)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (run_id, url_hash) do nothing
		returning id, run_id, url, url_hash, depth, priority, status, worker_id, claimed_at, attempts, max_attempts, created_at`,
		item.RunID, item.URL, item.URLHash, item.Depth, item.Priority, item.MaxAttempts)
	q, err := scanQueueItem(row)
	if errors.Is(err, ErrNotFound) {
		// Conflict: the URL is already queued for this run.
		return model.QueueItem{}, ErrDuplicateQueueItem
	}
	return q, err
}

func (r pgQueueRepo) AddBatch(ctx context.Context, items []model.QueueItemCreate) ([]model.QueueItem, error) {
	added := make([]model.QueueItem, 0, len(items))
	for _, item := range items {
		q, err := r.Add(ctx, item)
		if errors.Is(err, ErrDuplicateQueueItem) {
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, q)
	}
	return added, nil
}

func (r pgQueueRepo) Claim(ctx context.Context, runID uuid.UUID, workerID string, limit int) ([]model.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `select * from claim_queue_items($1, $2, $3)`, runID, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queue items: %w", err)
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (r pgQueueRepo) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `update crawl_queue set status = 'completed' where id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete queue item: %w", err)
	}
	return nil
}

func (r pgQueueRepo) Fail(ctx context.Context, id uuid.UUID, errMsg *string) error {
	_, err := r.pool.Exec(ctx, `update crawl_queue set status = 'failed' where id = $1`, id)
	if err != nil {
		return fmt.Errorf("fail queue item: %w", err)
	}
	return nil
}

func (r pgQueueRepo) ResetStale(ctx context.Context, timeout time.Duration) (int, error) {
	var n int
	row := r.pool.QueryRow(ctx, `select reset_stale_queue_items($1)`, int(timeout.Minutes()))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("reset stale queue items: %w", err)
	}
	return n, nil
}

func (r pgQueueRepo) PendingCount(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	row := r.pool.QueryRow(ctx, `
		select count(*) from crawl_queue where run_id = $1 and status = 'pending'`, runID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending queue items: %w", err)
	}
	return n, nil
}

func scanQueueItem(row pgx.Row) (model.QueueItem, error) {
	var q model.QueueItem
	err := row.Scan(&q.ID, &q.RunID, &q.URL, &q.URLHash, &q.Depth, &q.Priority, &q.Status,
		&q.WorkerID, &q.ClaimedAt, &q.Attempts, &q.MaxAttempts, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueueItem{}, ErrNotFound
	}
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item: %w", err)
	}
	return q, nil
}

type pgPageRepo struct{ pool *pgxpool.Pool }

func (r pgPageRepo) Create(ctx context.Context, page model.CrawledPage) (model.CrawledPage, error) {
	row := r.pool.QueryRow(ctx, `
		insert into crawled_pages (run_id, source_id, url, url_hash, status_code, content, content_hash, error)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, run_id, source_id, url, url_hash, status_code, content, content_hash, error, crawled_at`,
		page.RunID, page.SourceID, page.URL, page.URLHash, page.StatusCode, page.Content, page.ContentHash, page.Error)
	return scanPage(row)
}

func (r pgPageRepo) CreateBatch(ctx context.Context, pages []model.CrawledPage) ([]model.CrawledPage, error) {
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

func (r pgPageRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]model.CrawledPage, error) {
	rows, err := r.pool.Query(ctx, `
		select id, run_id, source_id, url, url_hash, status_code, content, content_hash, error, crawled_at
		from crawled_pages where run_id = $1 order by crawled_at desc`, runID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []model.CrawledPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r pgPageRepo) LatestByURL(ctx context.Context, sourceID uuid.UUID, urlHash string) (*model.CrawledPage, error) {
	row := r.pool.QueryRow(ctx, `
		select id, run_id, source_id, url, url_hash, status_code, content, content_hash, error, crawled_at
		from crawled_pages where source_id = $1 and url_hash = $2
		order by crawled_at desc limit 1`, sourceID, urlHash)
	p, err := scanPage(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPage(row pgx.Row) (model.CrawledPage, error) {
	var p model.CrawledPage
	err := row.Scan(&p.ID, &p.RunID, &p.SourceID, &p.URL, &p.URLHash, &p.StatusCode, &p.Content, &p.ContentHash, &p.Error, &p.CrawledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CrawledPage{}, ErrNotFound
	}
	if err != nil {
		return model.CrawledPage{}, fmt.Errorf("scan page: %w", err)
	}
	return p, nil
}
