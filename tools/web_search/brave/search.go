package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
)

// Search queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
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

	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(k))
	if f := freshness(recency); f != "" {
		params.Set("freshness", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.search.brave.com/res/v1/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)

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
		return nil, fmt.Errorf("brave search: status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]models.Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		if len(out) >= k {
			break
		}
		out = append(out, models.Result{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Description,
			PublishedAt: r.Age,
		})
	}
	return out, nil
}

// freshness maps a max age in days onto Brave's coarse freshness buckets.
func freshness(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "pd"
	case days <= 7:
		return "pw"
	case days <= 31:
		return "pm"
	default:
		return "py"
	}
}
