package helpers

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults to https and cleans path",
			in:   "example.com/a/../b",
			want: "https://example.com/b",
		},
		{
			name: "adds root path for bare host",
			in:   "example.com",
			want: "https://example.com/",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://Example.com:80/x?utm_source=tw&q=1",
			want: "http://example.com/x?q=1",
		},
		{
			name: "keeps non default port",
			in:   "https://example.com:8443/x",
			want: "https://example.com:8443/x",
		},
		{
			name: "sorts query and preserves trailing slash",
			in:   "https://example.com/dir/?b=2&a=1",
			want: "https://example.com/dir/?a=1&b=2",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/page#section-2",
			want: "https://example.com/page",
		},
		{
			name: "schemeless double slash",
			in:   "//cdn.example.com/lib.js",
			want: "https://cdn.example.com/lib.js",
		},
		{
			name: "collapses repeated slashes",
			in:   "https://example.com//a///b",
			want: "https://example.com/a/b",
		},
		{
			name: "strips every tracking param",
			in:   "https://example.com/a?fbclid=x&gclid=y&utm_campaign=z",
			want: "https://example.com/a",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "https:///no-host"} {
		if _, err := CanonicalURL(in); err == nil {
			t.Fatalf("CanonicalURL(%q): expected error", in)
		}
	}
}

func TestURLFingerprint(t *testing.T) {
	t.Parallel()

	a, err := URLFingerprint("https://example.com/a?utm_source=nl")
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, err := URLFingerprint("example.com/a")
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a != b {
		t.Fatalf("tracking variant should share fingerprint: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64", len(a))
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/a/b", "example.com"},
		{"http://news.example.org:8080/x", "news.example.org"},
		{"example.com/path", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Fatalf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHostPathTokens(t *testing.T) {
	t.Parallel()

	got := HostPathTokens("https://www.example-news.com/tech/ai-chips-2025.html")
	want := []string{"example", "news", "tech", "chips", "2025"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
}
