package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/models"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Grid batteries</title></head>
<body>
<article>
<h1>Grid batteries scale up</h1>
<p>Utility storage deployments doubled last year as cell prices fell.
Operators report four hour systems are now routine on new solar sites,
and several regions are planning longer duration pilots for next winter.</p>
<p>Analysts expect the trend to continue while interconnection queues
clear, though supply of grid scale inverters remains tight.</p>
</article>
</body></html>`

const paywallHTML = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">{"@type":"NewsArticle","isAccessibleForFree":false}</script>
</head><body><p>Subscribe to continue reading this story.</p></body></html>`

func TestExecExtractsArticle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second, MaxChars: 20000}
	got, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", got.Status)
	}
	if !strings.Contains(got.Text, "storage deployments doubled") {
		t.Fatalf("article text missing, got %q", got.Text)
	}
	if got.HTMLHash == "" {
		t.Fatalf("expected html hash")
	}
	if got.Paywalled {
		t.Fatalf("article wrongly flagged as paywalled")
	}
}

func TestExecFlagsPaywall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(paywallHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second, MaxChars: 20000}
	got, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !got.Paywalled {
		t.Fatalf("expected paywall flag")
	}
}

func TestExecPropagatesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second}
	got, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got.Status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", got.Status)
	}
	if got.Text != "" {
		t.Fatalf("no text expected on 403, got %q", got.Text)
	}
}

func TestExecMarksUnreachable(t *testing.T) {
	t.Parallel()

	f := Fetch{Timeout: 2 * time.Second}
	got, err := f.Exec(context.Background(), "http://127.0.0.1:1/nothing")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got.Status != models.StatusUnreachable && got.Status != models.StatusTimeout {
		t.Fatalf("status = %d, want synthetic failure code", got.Status)
	}
}
