package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	mu       sync.Mutex
	failures int
	calls    int
	keys     []string
	bodies   []string
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("service unavailable")
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func noBackoff(int) time.Duration { return 0 }

func TestKey(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "/data/yarrdb_log.jsonl", "yarrdb_log.jsonl"},
		{"overlay", "/data/yarrdb_log.jsonl", "overlay/yarrdb_log.jsonl"},
		{"/overlay/live/", "yarrdb_data.jsonl", "overlay/live/yarrdb_data.jsonl"},
	}

	for _, tt := range tests {
		u := New(nil, "bucket", tt.prefix, 0)
		if got := u.Key(tt.path); got != tt.want {
			t.Errorf("Key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestUploadWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yarrdb_log.jsonl")
	if err := os.WriteFile(path, []byte("{\"Message\":null}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePutter{failures: 2}
	u := New(fake, "bucket", "live", 3)
	u.backoff = noBackoff

	if err := u.UploadWithRetry(context.Background(), path); err != nil {
		t.Fatalf("UploadWithRetry() error: %v", err)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
	if len(fake.keys) != 1 || fake.keys[0] != "live/yarrdb_log.jsonl" {
		t.Errorf("keys = %v", fake.keys)
	}
	if fake.bodies[0] != "{\"Message\":null}\n" {
		t.Errorf("body = %q", fake.bodies[0])
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local file should be kept: %v", err)
	}
}

func TestUploadGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yarrdb_data.jsonl")
	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePutter{failures: 10}
	u := New(fake, "bucket", "", 1)
	u.backoff = noBackoff

	if err := u.UploadWithRetry(context.Background(), path); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
}

func TestUploadMissingFile(t *testing.T) {
	fake := &fakePutter{}
	u := New(fake, "bucket", "", 0)
	if err := u.UploadWithRetry(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if fake.calls != 0 {
		t.Errorf("PutObject should not be called, got %d calls", fake.calls)
	}
}
