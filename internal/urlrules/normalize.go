// Package urlrules implements the pure URL canonicalization and identity
// rules shared by every component that touches a URL: normalization, the
// SHA-256 fingerprint used as the durable queue's dedup key, and domain
// extraction/filtering.
package urlrules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Normalize parses rawURL and returns a canonical form: scheme and host are
// lowercased, the fragment is stripped, the path's trailing slash is
// stripped unless the path is empty or "/" (an empty path becomes "/"), and
// the query string is preserved verbatim. Normalize is idempotent:
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("cannot normalize empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: URL must have both scheme and host", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}

// Hash returns the SHA-256 hex digest of the UTF-8 bytes of normalizedURL.
// It does not normalize its input itself; callers pass the output of
// Normalize. It is the canonical identity used for queue dedup and page
// lookups: two URLs that normalize equally always hash equally, and URLs that
// normalize differently hash differently (up to SHA-256 collision resistance).
func Hash(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// ExtractDomain returns the host authority (no scheme, no path) of rawURL.
func ExtractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract domain from %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("extract domain from %q: URL has no host", rawURL)
	}
	return strings.ToLower(parsed.Host), nil
}
