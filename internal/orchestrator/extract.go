package orchestrator

import (
	"fmt"
	"io"
	"net/url"

	"golang.org/x/net/html"

	"github.com/oakhollow/domaincrawl/internal/urlrules"
)

// ExtractLinks parses HTML from body and returns the deduplicated,
// normalized, absolute URLs of every anchor href, resolved against baseURL.
// Non-HTTP schemes are dropped. Parse errors mid-document are tolerated —
// whatever was extracted before the error is still returned.
func ExtractLinks(body io.Reader, baseURL *url.URL) ([]string, error) {
	tokenizer := html.NewTokenizer(body)
	seen := make(map[string]bool)
	var links []string
	var errs []error

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if len(errs) > 0 {
				return links, fmt.Errorf("encountered %d parse errors (first: %w)", len(errs), errs[0])
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "a" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key != "href" {
					continue
				}
				href := attr.Val
				if href == "" {
					href = baseURL.String()
				}

				hrefURL, err := url.Parse(href)
				if err != nil {
					errs = append(errs, fmt.Errorf("parse href %q: %w", href, err))
					continue
				}
				resolved := baseURL.ResolveReference(hrefURL).String()

				if !urlrules.IsHTTPScheme(resolved) {
					continue
				}

				normalized, err := urlrules.Normalize(resolved)
				if err != nil {
					errs = append(errs, fmt.Errorf("normalize %q: %w", resolved, err))
					continue
				}

				if !seen[normalized] {
					seen[normalized] = true
					links = append(links, normalized)
				}
			}
		}
	}
}
