package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Example Wire</title>
<item>
<title>Quantum chips reach new milestone</title>
<link>https://example.com/quantum-chips</link>
<description>Researchers demonstrate error correction.</description>
<pubDate>Mon, 18 Aug 2025 10:00:00 GMT</pubDate>
</item>
<item>
<title>Local sports roundup</title>
<link>https://example.com/sports</link>
<description>Weekend scores.</description>
<pubDate>Mon, 18 Aug 2025 11:00:00 GMT</pubDate>
</item>
</channel>
</rss>`

func TestDiscoverFiltersByKeyword(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	s := New([]string{srv.URL}, 0)
	got, err := s.Discover(context.Background(), "quantum chips", 5, nil, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(got), got)
	}
	if got[0].URL != "https://example.com/quantum-chips" {
		t.Fatalf("unexpected url %q", got[0].URL)
	}
	if got[0].Source != "Example Wire" {
		t.Fatalf("unexpected source %q", got[0].Source)
	}
	if got[0].PublishedAt == "" {
		t.Fatalf("expected published timestamp")
	}
}

func TestThrottleSpacesCalls(t *testing.T) {
	t.Parallel()

	s := New(nil, 0)
	s.MinInterval = 30 * time.Millisecond

	start := time.Now()
	if err := s.throttle(context.Background()); err != nil {
		t.Fatalf("first throttle: %v", err)
	}
	if err := s.throttle(context.Background()); err != nil {
		t.Fatalf("second throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("second call not throttled, elapsed %v", elapsed)
	}
}

func TestThrottleHonorsCancellation(t *testing.T) {
	t.Parallel()

	s := New(nil, 0)
	s.MinInterval = time.Minute

	if err := s.throttle(context.Background()); err != nil {
		t.Fatalf("first throttle: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.throttle(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
