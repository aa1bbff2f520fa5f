// Package orchestrator implements the crawl engine's main run loop: seeding
// a queue from a source's entry URL and sitemaps, claiming batches of work,
// dispatching them to a worker pool, and persisting results before
// advancing the run's counters.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oakhollow/domaincrawl/internal/fetcher"
	"github.com/oakhollow/domaincrawl/internal/model"
	"github.com/oakhollow/domaincrawl/internal/ratelimit"
	"github.com/oakhollow/domaincrawl/internal/robots"
	"github.com/oakhollow/domaincrawl/internal/store"
	"github.com/oakhollow/domaincrawl/internal/urlrules"
	"github.com/oakhollow/domaincrawl/internal/visited"
)

// defaultMaxPages bounds a run when the source declares no explicit limit.
const defaultMaxPages = 1_000_000

// Options configures one StartRun invocation.
type Options struct {
	Delay       time.Duration
	BatchSize   int
	Concurrency int
	MaxDepth    int
	Resume      bool

	// MemoryLimitMB bounds the process's soft heap limit for this run; 0
	// disables memory-pressure throttling entirely.
	MemoryLimitMB int64
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Delay:       500 * time.Millisecond,
		BatchSize:   10,
		Concurrency: 10,
		MaxDepth:    5,
	}
}

// Orchestrator runs crawls against the four repositories in internal/store.
type Orchestrator struct {
	Sources store.SourceRepository
	Runs    store.RunRepository
	Queue   store.QueueRepository
	Pages   store.PageRepository
	Fetcher *fetcher.Fetcher
	Logger  *slog.Logger

	// VisitedCache is an optional non-authoritative pre-filter; nil disables
	// it and every enqueue attempt goes straight to the queue repository.
	VisitedCache *visited.Cache
}

// New creates an Orchestrator. logger may be nil, in which case slog.Default
// is used.
func New(sources store.SourceRepository, runs store.RunRepository, queue store.QueueRepository, pages store.PageRepository, f *fetcher.Fetcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Sources: sources, Runs: runs, Queue: queue, Pages: pages, Fetcher: f, Logger: logger}
}

// CreateSource constructs and persists a CrawlSource from an entry URL.
func (o *Orchestrator) CreateSource(ctx context.Context, entryURL string, sourceType model.SourceType) (model.CrawlSource, error) {
	normalized, err := urlrules.Normalize(entryURL)
	if err != nil {
		return model.CrawlSource{}, fmt.Errorf("create source: %w", err)
	}
	domain, err := urlrules.ExtractDomain(normalized)
	if err != nil {
		return model.CrawlSource{}, fmt.Errorf("create source: %w", err)
	}

	source, err := o.Sources.Create(ctx, model.CrawlSource{
		EntryURL:  normalized,
		Domain:    domain,
		Type:      sourceType,
		Status:    model.SourceStatusActive,
		Frequency: "manual",
	})
	if err != nil {
		return model.CrawlSource{}, fmt.Errorf("create source: %w", err)
	}

	o.Logger.Info("source created", "source_id", source.ID, "domain", source.Domain, "type", source.Type)
	return source, nil
}

// StartRun executes the full run algorithm for sourceID and returns the
// completed run. With opts.Resume, an existing running run for the source is
// continued instead of a new one being created; reset_stale is called first
// to reclaim anything a crashed worker left claimed.
func (o *Orchestrator) StartRun(ctx context.Context, sourceID uuid.UUID, opts Options) (model.CrawlRun, error) {
	opts = withDefaults(opts)

	source, err := o.Sources.GetByID(ctx, sourceID)
	if err != nil {
		return model.CrawlRun{}, fmt.Errorf("start run: source not found: %w", err)
	}

	run, err := o.beginRun(ctx, source, opts)
	if err != nil {
		return model.CrawlRun{}, err
	}

	memWatcher := newMemoryWatcher(opts.MemoryLimitMB)

	limiter := ratelimit.New(opts.Delay)
	robotsHandler := robots.NewHandler(ctx, baseURL(source.EntryURL, source.Domain))
	if crawlDelay, ok := robotsHandler.CrawlDelay(); ok {
		delay := opts.Delay
		if crawlDelay > delay {
			delay = crawlDelay
		}
		limiter.SetDomainDelay(source.Domain, delay)
	}

	if !opts.Resume {
		if err := o.seed(ctx, source, run, robotsHandler, opts); err != nil {
			return o.failRun(ctx, run, err)
		}
	}

	maxPages := defaultMaxPages
	if source.MaxPages != nil {
		maxPages = *source.MaxPages
	}

	pagesFound := run.PagesFound
	pagesCrawled := run.PagesCrawled
	pagesFailed := run.PagesFailed
	workerID := workerIdentity()

	for pagesCrawled+pagesFailed < maxPages {
		claimed, err := o.Queue.Claim(ctx, run.ID, workerID, opts.BatchSize)
		if err != nil {
			return o.failRun(ctx, run, fmt.Errorf("claim batch: %w", err))
		}
		if len(claimed) == 0 {
			break
		}

		batchOpts := opts
		if usedPercent, level := memWatcher.Check(); level != ThrottleNormal {
			batchOpts.Concurrency = throttledConcurrency(opts.Concurrency, level)
			o.Logger.Warn("throttling crawl concurrency under memory pressure",
				"run_id", run.ID, "used_percent", usedPercent, "level", level, "concurrency", batchOpts.Concurrency)
		}

		outcomes, err := o.processBatch(ctx, source, robotsHandler, limiter, batchOpts, claimed)
		if err != nil {
			return o.failRun(ctx, run, err)
		}

		var newPages []model.CrawledPage
		newItems := o.dedupeNewItems(outcomes)

		for _, oc := range outcomes {
			newPages = append(newPages, oc.page)
			if oc.success {
				pagesCrawled++
			} else {
				pagesFailed++
			}
		}
		pagesFound = pagesCrawled + pagesFailed

		if _, err := o.Pages.CreateBatch(ctx, newPages); err != nil {
			return o.failRun(ctx, run, fmt.Errorf("persist pages: %w", err))
		}
		if len(newItems) > 0 {
			if _, err := o.Queue.AddBatch(ctx, newItems); err != nil {
				return o.failRun(ctx, run, fmt.Errorf("persist new queue items: %w", err))
			}
		}

		for _, oc := range outcomes {
			var completeErr error
			if oc.success {
				completeErr = o.Queue.Complete(ctx, oc.item.ID)
			} else {
				errMsg := oc.page.Error
				completeErr = o.Queue.Fail(ctx, oc.item.ID, errMsg)
			}
			if completeErr != nil {
				o.Logger.Error("failed to finalize queue item", "item_id", oc.item.ID, "error", completeErr)
			}
		}

		if err := o.Runs.UpdateStats(ctx, run.ID, pagesFound, pagesCrawled, pagesFailed); err != nil {
			return o.failRun(ctx, run, fmt.Errorf("update run stats: %w", err))
		}
	}

	if err := o.Runs.MarkCompleted(ctx, run.ID, nil); err != nil {
		return model.CrawlRun{}, fmt.Errorf("mark run completed: %w", err)
	}

	final, err := o.Runs.GetByID(ctx, run.ID)
	if err != nil {
		return model.CrawlRun{}, fmt.Errorf("reload completed run: %w", err)
	}
	o.Logger.Info("run completed", "run_id", final.ID, "pages_crawled", final.PagesCrawled, "pages_failed", final.PagesFailed)
	return final, nil
}

func (o *Orchestrator) beginRun(ctx context.Context, source model.CrawlSource, opts Options) (model.CrawlRun, error) {
	if opts.Resume {
		runs, err := o.Runs.ListBySource(ctx, source.ID)
		if err != nil {
			return model.CrawlRun{}, fmt.Errorf("resume run: list runs: %w", err)
		}
		for _, r := range runs {
			if r.Status == model.RunStatusRunning {
				if _, err := o.Queue.ResetStale(ctx, 5*time.Minute); err != nil {
					return model.CrawlRun{}, fmt.Errorf("resume run: reset stale items: %w", err)
				}
				o.Logger.Info("resuming run", "run_id", r.ID, "source_id", source.ID)
				return r, nil
			}
		}
		return model.CrawlRun{}, fmt.Errorf("resume run: no running run found for source %s", source.ID)
	}

	run, err := o.Runs.Create(ctx, model.CrawlRun{SourceID: source.ID, Status: model.RunStatusPending})
	if err != nil {
		return model.CrawlRun{}, fmt.Errorf("create run: %w", err)
	}
	if err := o.Runs.MarkStarted(ctx, run.ID); err != nil {
		return model.CrawlRun{}, fmt.Errorf("mark run started: %w", err)
	}
	run.Status = model.RunStatusRunning
	o.Logger.Info("run started", "run_id", run.ID, "source_id", source.ID)
	return run, nil
}

func (o *Orchestrator) failRun(ctx context.Context, run model.CrawlRun, runErr error) (model.CrawlRun, error) {
	msg := runErr.Error()
	if err := o.Runs.MarkCompleted(ctx, run.ID, &msg); err != nil {
		o.Logger.Error("failed to mark run failed", "run_id", run.ID, "error", err)
	}
	o.Logger.Error("run failed", "run_id", run.ID, "error", runErr)
	return model.CrawlRun{}, runErr
}

// seed builds the initial batch: the entry URL plus every sitemap-declared
// URL, normalized, filtered to in-domain and robots-allowed, and deduped by
// url_hash before a single batch insert at depth 0.
func (o *Orchestrator) seed(ctx context.Context, source model.CrawlSource, run model.CrawlRun, robotsHandler *robots.Handler, opts Options) error {
	candidates := []string{source.EntryURL}

	sitemapParser := robots.NewSitemapParser()
	for _, sitemapURL := range robotsHandler.Sitemaps() {
		candidates = append(candidates, sitemapParser.Parse(ctx, sitemapURL)...)
	}

	seen := make(map[string]bool)
	var items []model.QueueItemCreate
	for _, raw := range candidates {
		normalized, err := urlrules.Normalize(raw)
		if err != nil {
			continue
		}
		if !urlrules.IsSameDomain(normalized, source.Domain) {
			continue
		}
		if !robotsHandler.CanFetch(normalized) {
			continue
		}
		hash := urlrules.Hash(normalized)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		if o.VisitedCache != nil {
			if o.VisitedCache.MightContain(hash) {
				continue
			}
			o.VisitedCache.Add(hash)
		}
		items = append(items, model.QueueItemCreate{
			RunID:       run.ID,
			URL:         normalized,
			URLHash:     hash,
			Depth:       0,
			MaxAttempts: model.DefaultMaxAttempts,
		})
	}

	added, err := o.Queue.AddBatch(ctx, items)
	if err != nil {
		return fmt.Errorf("seed queue: %w", err)
	}
	o.Logger.Info("run seeded", "run_id", run.ID, "seed_count", len(added))
	return nil
}

// outcome is the result of processing one claimed queue item.
type outcome struct {
	item    model.QueueItem
	page    model.CrawledPage
	success bool
	links   []string
}

// processBatch dispatches claimed to a worker pool of size opts.Concurrency,
// matching spec.md §5's batch barrier: the orchestrator suspends until every
// item in the batch has a result before moving on to persistence.
func (o *Orchestrator) processBatch(ctx context.Context, source model.CrawlSource, robotsHandler *robots.Handler, limiter *ratelimit.Limiter, opts Options, claimed []model.QueueItem) ([]outcome, error) {
	outcomes := make([]outcome, len(claimed))

	group, groupCtx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	for w := 0; w < opts.Concurrency; w++ {
		group.Go(func() error {
			for i := range jobs {
				outcomes[i] = o.processItem(groupCtx, source, robotsHandler, limiter, opts, claimed[i])
			}
			return nil
		})
	}

	group.Go(func() error {
		defer close(jobs)
		for i := range claimed {
			select {
			case jobs <- i:
			case <-groupCtx.Done():
				return nil
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (o *Orchestrator) processItem(ctx context.Context, source model.CrawlSource, robotsHandler *robots.Handler, limiter *ratelimit.Limiter, opts Options, item model.QueueItem) outcome {
	domain, err := urlrules.ExtractDomain(item.URL)
	if err != nil {
		domain = source.Domain
	}

	if err := limiter.Acquire(ctx, domain); err != nil {
		return failedOutcome(source, item, fmt.Sprintf("rate limiter: %v", err))
	}

	body, statusCode, fetchErr := o.Fetcher.Download(ctx, item.URL)

	if fetchErr != nil || body == nil {
		isRedirectLoop := fetchErr != nil && strings.Contains(fetchErr.Error(), "redirect")
		category := fetcher.ClassifyError(fetchErr, statusCode, isRedirectLoop)
		return failedOutcome(source, item, string(category))
	}

	contentHash := sha256.Sum256(body)
	contentHashHex := hex.EncodeToString(contentHash[:])
	bodyStr := string(body)
	sc := statusCode

	page := model.CrawledPage{
		RunID:       item.RunID,
		SourceID:    source.ID,
		URL:         item.URL,
		URLHash:     item.URLHash,
		StatusCode:  &sc,
		Content:     &bodyStr,
		ContentHash: &contentHashHex,
	}

	var links []string
	if item.Depth+1 < opts.MaxDepth {
		if baseURL, err := url.Parse(item.URL); err == nil {
			extracted, _ := ExtractLinks(strings.NewReader(bodyStr), baseURL)
			for _, link := range extracted {
				if !urlrules.IsSameDomain(link, source.Domain) {
					continue
				}
				if !robotsHandler.CanFetch(link) {
					continue
				}
				links = append(links, link)
			}
		}
	}

	return outcome{item: item, page: page, success: true, links: links}
}

func failedOutcome(source model.CrawlSource, item model.QueueItem, errMsg string) outcome {
	return outcome{
		item: item,
		page: model.CrawledPage{
			RunID:    item.RunID,
			SourceID: source.ID,
			URL:      item.URL,
			URLHash:  item.URLHash,
			Error:    &errMsg,
		},
		success: false,
	}
}

// dedupeNewItems flattens every outcome's discovered links into
// QueueItemCreate values, deduped by url_hash within the batch. Links the
// visited cache already claims to have seen are skipped before ever
// reaching the queue repository, with no datastore check, so a bloom-filter
// false positive drops a link that was never enqueued. The queue's
// (run_id, url_hash) constraint remains the authoritative check for
// everything that does get added.
func (o *Orchestrator) dedupeNewItems(outcomes []outcome) []model.QueueItemCreate {
	seen := make(map[string]bool)
	var items []model.QueueItemCreate
	for _, oc := range outcomes {
		if !oc.success {
			continue
		}
		for _, link := range oc.links {
			hash := urlrules.Hash(link)
			if seen[hash] {
				continue
			}
			seen[hash] = true

			if o.VisitedCache != nil && o.VisitedCache.MightContain(hash) {
				continue
			}

			items = append(items, model.QueueItemCreate{
				RunID:       oc.item.RunID,
				URL:         link,
				URLHash:     hash,
				Depth:       oc.item.Depth + 1,
				MaxAttempts: model.DefaultMaxAttempts,
			})
			if o.VisitedCache != nil {
				o.VisitedCache.Add(hash)
			}
		}
	}
	return items
}

// baseURL returns the scheme+host prefix robots.NewHandler fetches
// "/robots.txt" against, taking the scheme from entryURL and falling back to
// https if it can't be parsed.
func baseURL(entryURL, domain string) string {
	if parsed, err := url.Parse(entryURL); err == nil && parsed.Scheme != "" {
		return parsed.Scheme + "://" + domain
	}
	return "https://" + domain
}

func withDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.Delay <= 0 {
		opts.Delay = d.Delay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = d.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = d.Concurrency
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = d.MaxDepth
	}
	return opts
}

var workerIDOnce sync.Once
var workerIDValue string

// workerIdentity returns a stable identifier for this process's claims,
// hostname-pid by default, matching the original's worker_id convention.
func workerIdentity() string {
	workerIDOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		workerIDValue = fmt.Sprintf("%s-%d", host, os.Getpid())
	})
	return workerIDValue
}
