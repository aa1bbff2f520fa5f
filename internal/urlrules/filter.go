package urlrules

import (
	"net/url"
	"strings"
)

// IsSameDomain reports whether targetURL's host authority equals domain
// exactly. Unlike subdomain-permissive link checkers, the crawl engine never
// follows links outside source.domain (spec: "the engine never crawls
// outside source.domain"), so this is an exact match, not a suffix match.
func IsSameDomain(targetURL string, domain string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, domain)
}

// IsHTTPScheme reports whether rawURL has an http or https scheme.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// ResolveReference resolves a possibly-relative ref URL against base.
func ResolveReference(base string, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
