// Package config loads the environment-backed settings the crawl engine
// needs to reach its datastore.
package config

import (
	"fmt"
	"os"
)

// Config holds the connection settings read from the process environment.
type Config struct {
	// DatastoreURL is a Postgres connection string (Supabase connection
	// pooling URL or a plain libpq DSN both work, since both speak the
	// Postgres wire protocol).
	DatastoreURL string
	// DatastoreServiceKey is required by Load, but the Postgres store does
	// not read it: the connection authenticates with the credentials in
	// DatastoreURL only.
	DatastoreServiceKey string
}

// Load reads DATASTORE_URL and DATASTORE_SERVICE_KEY from the environment.
// Both are required; Load returns an error naming whichever is missing
// rather than letting the process fail later with an opaque connection
// error.
func Load() (Config, error) {
	url := os.Getenv("DATASTORE_URL")
	if url == "" {
		return Config{}, fmt.Errorf("DATASTORE_URL is not set")
	}

	key := os.Getenv("DATASTORE_SERVICE_KEY")
	if key == "" {
		return Config{}, fmt.Errorf("DATASTORE_SERVICE_KEY is not set")
	}

	return Config{DatastoreURL: url, DatastoreServiceKey: key}, nil
}
