// Package feeds implements the supplementary feed lane. Feeds are pulled and
// filtered locally against the query because they are not queryable like a
// search API.
package feeds

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
)

type Search struct {
	URLs        []string
	MinInterval time.Duration

	client *http.Client
	mu     sync.Mutex
	last   time.Time
}

// New builds the feed lane. perMinute caps how often the configured feeds are
// polled across all jobs; zero disables throttling.
func New(urls []string, perMinute int) *Search {
	var interval time.Duration
	if perMinute > 0 {
		interval = time.Minute / time.Duration(perMinute)
	}
	return &Search{
		URLs:        urls,
		MinInterval: interval,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	if len(s.URLs) == 0 || k <= 0 {
		return nil, nil
	}
	if err := s.throttle(ctx); err != nil {
		return nil, err
	}

	keywords := keywordsOf(q)
	if len(keywords) == 0 {
		return nil, nil
	}
	var cutoff time.Time
	if recency > 0 {
		cutoff = time.Now().AddDate(0, 0, -recency)
	}

	parser := gofeed.NewParser()
	out := make([]models.Result, 0, k)
	for _, feedURL := range s.URLs {
		if len(out) >= k {
			break
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			continue
		}
		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		feed, err := parser.Parse(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		for _, item := range feed.Items {
			if len(out) >= k {
				break
			}
			haystack := strings.ToLower(item.Title + " " + item.Description)
			if !matchesAny(haystack, keywords) {
				continue
			}
			published := ""
			if item.PublishedParsed != nil {
				if !cutoff.IsZero() && item.PublishedParsed.Before(cutoff) {
					continue
				}
				published = item.PublishedParsed.Format(time.RFC3339)
			}
			out = append(out, models.Result{
				Title:       strings.TrimSpace(item.Title),
				URL:         strings.TrimSpace(item.Link),
				Snippet:     strings.TrimSpace(item.Description),
				PublishedAt: published,
				Source:      strings.TrimSpace(feed.Title),
			})
		}
	}
	return out, nil
}

// throttle enforces the poll interval, sleeping inside the caller's context.
// Concurrent callers queue behind each other.
func (s *Search) throttle(ctx context.Context) error {
	if s.MinInterval <= 0 {
		return nil
	}
	s.mu.Lock()
	now := time.Now()
	next := s.last.Add(s.MinInterval)
	if next.Before(now) {
		next = now
	}
	s.last = next
	s.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func keywordsOf(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
