// Package robots fetches and parses a domain's robots.txt once per run and
// answers the questions the crawl engine needs: whether a URL may be
// fetched, what Crawl-delay (if any) applies, and which sitemaps are
// declared.
package robots

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// UserAgent is the single wildcard group the engine consults; per-user-agent
// crawl-delay groups are out of scope.
const UserAgent = "*"

const fetchTimeout = 10 * time.Second

// Handler holds the parsed robots.txt for one run's domain.
type Handler struct {
	group    *robotstxt.Group
	sitemaps []string
}

// NewHandler fetches baseURL + "/robots.txt" once. A 200 with a body is
// parsed as a standard robots.txt; any other outcome (non-200, fetch error,
// parse error) falls back to an allow-all ruleset with a default sitemap
// guess, since robots failures never fail a run.
func NewHandler(ctx context.Context, baseURL string) *Handler {
	defaultSitemaps := []string{baseURL + "/sitemap.xml"}

	client := &http.Client{Timeout: fetchTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/robots.txt", nil)
	if err != nil {
		return &Handler{sitemaps: defaultSitemaps}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Handler{sitemaps: defaultSitemaps}
	}
	defer resp.Body.Close()

	// Only a 200 is parsed as real rules. The robotstxt library's own
	// status-code handling treats some non-200 statuses (401, 403, 5xx) as
	// disallow-all rather than erroring, which would otherwise block a crawl
	// that robots failures are never supposed to block.
	if resp.StatusCode != http.StatusOK {
		return &Handler{sitemaps: defaultSitemaps}
	}

	robots, err := robotstxt.FromResponse(resp)
	if err != nil || robots == nil {
		return &Handler{sitemaps: defaultSitemaps}
	}

	sitemaps := robots.Sitemaps
	if len(sitemaps) == 0 {
		sitemaps = defaultSitemaps
	}

	return &Handler{
		group:    robots.FindGroup(UserAgent),
		sitemaps: sitemaps,
	}
}

// CanFetch reports whether rawURL is allowed for UserAgent. A nil group
// (parse failure or no matching group) is treated as allow-all.
func (h *Handler) CanFetch(rawURL string) bool {
	if h.group == nil {
		return true
	}
	// Rules are path prefixes, so test the URL's path and query, not the
	// full URL.
	path := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		path = parsed.RequestURI()
	}
	return h.group.Test(path)
}

// CrawlDelay returns the robots.txt Crawl-delay directive for UserAgent, if
// one was declared.
func (h *Handler) CrawlDelay() (time.Duration, bool) {
	if h.group == nil || h.group.CrawlDelay <= 0 {
		return 0, false
	}
	return h.group.CrawlDelay, true
}

// Sitemaps returns the sitemap URLs declared in robots.txt, or
// baseURL + "/sitemap.xml" if none were declared.
func (h *Handler) Sitemaps() []string {
	return h.sitemaps
}
