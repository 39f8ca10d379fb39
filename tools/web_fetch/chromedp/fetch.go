// Package chromedp captures pages in headless Chrome and extracts the
// readable article.
package chromedp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/models"
)

const userAgent = "ResearchHive/1.0 (+research-agent)"

type Fetch struct {
	Timeout  time.Duration
	MaxChars int
}

// Exec renders the page and returns the extracted article. Capture failures
// are encoded in Result.Status rather than an error so the caller can record
// source health uniformly.
func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	start := time.Now()

	html, err := renderHTML(ctx, rawURL)
	if err != nil {
		status := models.StatusUnreachable
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = models.StatusTimeout
		}
		return models.Result{URL: rawURL, Status: status, RenderMS: elapsedMS(start)}, nil
	}

	parsed, perr := url.Parse(rawURL)
	if perr != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return models.Result{URL: rawURL, Status: 200, RenderMS: elapsedMS(start)}, nil
	}

	published := ""
	if article.PublishedTime != nil {
		published = article.PublishedTime.Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(html))

	return models.Result{
		URL:         rawURL,
		Title:       strings.TrimSpace(article.Title),
		Byline:      strings.TrimSpace(article.Byline),
		PublishedAt: published,
		Text:        clip(strings.TrimSpace(article.TextContent), f.MaxChars),
		TopImage:    article.Image,
		HTMLHash:    hex.EncodeToString(sum[:]),
		Status:      200,
		RenderMS:    elapsedMS(start),
	}, nil
}

func renderHTML(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
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
