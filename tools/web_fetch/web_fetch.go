package web_fetch

import (
	"context"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/chromedp"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/models"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/static"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	ChromedpFetcherType FetcherType = "chromedp"
	StaticFetcherType   FetcherType = "static"
)

type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	case StaticFetcherType:
		return &static.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, &Error{"unsupported fetcher type"}
	}
}
