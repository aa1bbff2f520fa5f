package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHandler_Allowed(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		path       string
		want       bool
	}{
		{
			name:       "disallow specific path",
			statusCode: http.StatusOK,
			body:       "User-agent: *\nDisallow: /private/\n",
			path:       "/private/secret",
			want:       false,
		},
		{
			name:       "allow public path",
			statusCode: http.StatusOK,
			body:       "User-agent: *\nDisallow: /private/\n",
			path:       "/public/page",
			want:       true,
		},
		{
			name:       "404 allows all",
			statusCode: http.StatusNotFound,
			body:       "",
			path:       "/anything",
			want:       true,
		},
		{
			name:       "500 allows all",
			statusCode: http.StatusInternalServerError,
			body:       "",
			path:       "/anything",
			want:       true,
		},
		{
			name:       "empty robots.txt allows all",
			statusCode: http.StatusOK,
			body:       "",
			path:       "/anything",
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/robots.txt" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			handler := NewHandler(context.Background(), server.URL)
			if got := handler.CanFetch(server.URL + tt.path); got != tt.want {
				t.Errorf("CanFetch(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewHandler_CrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("User-agent: *\nCrawl-delay: 5\n"))
	}))
	defer server.Close()

	handler := NewHandler(context.Background(), server.URL)
	delay, ok := handler.CrawlDelay()
	if !ok {
		t.Fatal("expected a crawl delay to be declared")
	}
	if delay != 5*time.Second {
		t.Errorf("CrawlDelay() = %v, want 5s", delay)
	}
}

func TestNewHandler_NoCrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /x\n"))
	}))
	defer server.Close()

	handler := NewHandler(context.Background(), server.URL)
	if _, ok := handler.CrawlDelay(); ok {
		t.Error("expected no crawl delay to be declared")
	}
}

func TestNewHandler_SitemapsFromRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Sitemap: https://example.com/sitemap-1.xml\nSitemap: https://example.com/sitemap-2.xml\n"))
	}))
	defer server.Close()

	handler := NewHandler(context.Background(), server.URL)
	sitemaps := handler.Sitemaps()
	if len(sitemaps) != 2 {
		t.Fatalf("got %d sitemaps, want 2: %v", len(sitemaps), sitemaps)
	}
}

func TestNewHandler_DefaultSitemapWhenNoneDeclared(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	handler := NewHandler(context.Background(), server.URL)
	sitemaps := handler.Sitemaps()
	if len(sitemaps) != 1 || sitemaps[0] != server.URL+"/sitemap.xml" {
		t.Errorf("Sitemaps() = %v, want default guess", sitemaps)
	}
}

func TestNewHandler_UnreachableHostAllowsAll(t *testing.T) {
	handler := NewHandler(context.Background(), "http://127.0.0.1:1")
	if !handler.CanFetch("http://127.0.0.1:1/anything") {
		t.Error("expected unreachable robots.txt to allow all")
	}
}
