// Package helpers holds small URL utilities shared by acquisition, evidence
// bookkeeping, and the index.
package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingQueryParams are dropped during canonicalization so the same article
// reached through different campaigns dedups to one URL.
var trackingQueryParams = map[string]struct{}{
	"utm_source":      {},
	"utm_medium":      {},
	"utm_campaign":    {},
	"utm_term":        {},
	"utm_content":     {},
	"utm_id":          {},
	"utm_name":        {},
	"utm_reader":      {},
	"utm_place":       {},
	"utm_social":      {},
	"utm_social-type": {},
	"gclid":           {},
	"dclid":           {},
	"fbclid":          {},
	"msclkid":         {},
	"igshid":          {},
}

// CanonicalURL normalizes a URL for dedup comparison: https default scheme,
// lowercased scheme/host, default ports removed, fragment dropped, path
// cleaned, tracking parameters stripped, and remaining query keys sorted.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := parseLoose(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	switch parsed.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	parsed.Host = host

	trailing := strings.HasSuffix(parsed.Path, "/") && parsed.Path != "/"
	cleaned := path.Clean(parsed.Path)
	if cleaned == "." || cleaned == "" {
		cleaned = "/"
	}
	if trailing && cleaned != "/" {
		cleaned += "/"
	}
	parsed.Path = cleaned
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	for key := range query {
		sort.Strings(query[key])
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// URLFingerprint returns the SHA-256 hex digest of the canonical URL.
func URLFingerprint(raw string) (string, error) {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Domain extracts the registrable-ish host of a URL, lowercased and without
// a leading www. Invalid input yields "".
func Domain(raw string) string {
	parsed, err := parseLoose(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}

// HostPathTokens splits a URL's host and path into lowercase word tokens for
// keyword-overlap scoring. Very short fragments are skipped.
func HostPathTokens(raw string) []string {
	parsed, err := parseLoose(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	splitter := func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}
	source := strings.ToLower(parsed.Host + " " + parsed.Path)
	fields := strings.FieldsFunc(source, splitter)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || f == "www" || f == "com" || f == "org" || f == "net" || f == "html" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// parseLoose parses raw, tolerating schemeless forms like example.com/path
// and //example.com/path.
func parseLoose(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}
