// Package static captures pages with a plain HTTP GET. It cannot run
// scripts, but it is cheap and works where a rendering browser is
// unavailable.
package static

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/models"
)

const (
	userAgent    = "ResearchHive/1.0 (+research-agent)"
	maxBodyBytes = 4 << 20
)

type Fetch struct {
	Timeout  time.Duration
	MaxChars int
	Client   *http.Client
}

// paywallMarkers are body phrases that identify a metered or hard paywall
// when the response itself is a 200.
var paywallMarkers = []string{
	"subscribe to continue",
	"subscription required",
	"to continue reading",
	"already a subscriber",
	"this article is for subscribers",
}

func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		status := models.StatusUnreachable
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = models.StatusTimeout
		}
		return models.Result{URL: rawURL, Status: status, RenderMS: elapsedMS(start)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Result{URL: rawURL, Status: resp.StatusCode, RenderMS: elapsedMS(start)}, nil
	}
	html := string(body)

	result := models.Result{
		URL:      rawURL,
		Status:   resp.StatusCode,
		RenderMS: elapsedMS(start),
	}
	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	parsed, perr := url.Parse(rawURL)
	if perr != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil {
		result.Title = strings.TrimSpace(article.Title)
		result.Byline = strings.TrimSpace(article.Byline)
		result.Text = clip(strings.TrimSpace(article.TextContent), f.MaxChars)
		result.TopImage = article.Image
		if article.PublishedTime != nil {
			result.PublishedAt = article.PublishedTime.Format(time.RFC3339)
		}
	}
	if result.Text == "" {
		result.Text = clip(extractText(html), f.MaxChars)
	}

	sum := sha256.Sum256(body)
	result.HTMLHash = hex.EncodeToString(sum[:])
	result.Paywalled = detectPaywall(html, result.Text)
	return result, nil
}

// extractText is the fallback extraction when readability finds no article:
// headings, paragraphs and list items joined in document order.
func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find("h1,h2,h3,p,li").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

// detectPaywall flags pages that answer 200 but withhold the article body.
func detectPaywall(html, text string) bool {
	if strings.Contains(html, `"isAccessibleForFree":false`) ||
		strings.Contains(html, `"isAccessibleForFree": false`) {
		return true
	}
	lower := strings.ToLower(text)
	if lower == "" {
		lower = strings.ToLower(html)
	}
	for _, marker := range paywallMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut
}

func elapsedMS(start time.Time) int {
	return int(time.Since(start) / time.Millisecond)
}
