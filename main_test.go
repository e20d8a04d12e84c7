package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/john/chatoverlay/internal/config"
	"github.com/john/chatoverlay/internal/source"
)

func TestOverlaySourcesCacheBustLogOnly(t *testing.T) {
	var mu sync.Mutex
	queries := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries[r.URL.Path] = r.URL.RawQuery
		mu.Unlock()
		w.Write([]byte("\n"))
	}))
	defer srv.Close()

	o := config.OverlayConfig{
		Snapshot: srv.URL + "/yarrdb_data.jsonl",
		Log:      srv.URL + "/yarrdb_log.jsonl",
	}
	snapshot, logSrc, err := overlaySources(o, source.Deps{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("overlaySources() error: %v", err)
	}
	for _, src := range []source.Source{snapshot, logSrc} {
		if _, err := src.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch(%s) error: %v", src, err)
		}
	}

	if q := queries["/yarrdb_data.jsonl"]; q != "" {
		t.Errorf("snapshot query = %q, want none", q)
	}
	if q := queries["/yarrdb_log.jsonl"]; q == "" {
		t.Error("log request must carry a cache-busting query")
	}
}

func TestOverlaySourcesInvalidLocation(t *testing.T) {
	o := config.OverlayConfig{Snapshot: "s3://bucket-only", Log: "yarrdb_log.jsonl"}
	if _, _, err := overlaySources(o, source.Deps{}); err == nil {
		t.Error("expected error for invalid snapshot location")
	}
}
