package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
)

// Search queries the Serper Google proxy.
// https://serper.dev docs
type Search struct {
	ApiKey  string
	Timeout time.Duration
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	if k <= 0 {
		k = 10
	}
	if len(sites) > 0 {
		clauses := make([]string, 0, len(sites))
		for _, site := range sites {
			clauses = append(clauses, "site:"+site)
		}
		q = q + " " + strings.Join(clauses, " OR ")
	}

	payload := map[string]any{"q": q, "num": k}
	if tbs := timeBounds(recency); tbs != "" {
		payload["tbs"] = tbs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://google.serper.dev/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	client := http.DefaultClient
	if s.Timeout > 0 {
		client = &http.Client{Timeout: s.Timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search: status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]models.Result, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		if len(out) >= k {
			break
		}
		out = append(out, models.Result{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			PublishedAt: r.Date,
		})
	}
	return out, nil
}

// timeBounds maps a max age in days onto Google's qdr buckets.
func timeBounds(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
