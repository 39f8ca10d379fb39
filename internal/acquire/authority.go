package acquire

import "strings"

// domainAuthorityTable holds static quality priors for well-known domains.
// Scores are tuned constants, not learned weights.
var domainAuthorityTable = map[string]float64{
	"reuters.com":        0.95,
	"apnews.com":         0.95,
	"bbc.com":            0.9,
	"bbc.co.uk":          0.9,
	"nature.com":         0.95,
	"science.org":        0.95,
	"arxiv.org":          0.9,
	"nejm.org":           0.9,
	"thelancet.com":      0.9,
	"ieee.org":           0.85,
	"acm.org":            0.85,
	"nytimes.com":        0.85,
	"washingtonpost.com": 0.85,
	"wsj.com":            0.85,
	"ft.com":             0.85,
	"economist.com":      0.85,
	"theguardian.com":    0.8,
	"bloomberg.com":      0.8,
	"cnbc.com":           0.7,
	"wired.com":          0.7,
	"arstechnica.com":    0.7,
	"techcrunch.com":     0.65,
	"theverge.com":       0.65,
	"wikipedia.org":      0.75,
	"github.com":         0.6,
	"stackoverflow.com":  0.6,
	"medium.com":         0.4,
	"substack.com":       0.4,
	"reddit.com":         0.3,
}

// domainAuthority reports the static prior for a domain. Unknown domains get
// no prior, so keyword relevance alone decides their rank.
func domainAuthority(domain string) (float64, bool) {
	if domain == "" {
		return 0, false
	}
	if v, ok := domainAuthorityTable[domain]; ok {
		return v, true
	}
	// news.mit.edu matches mit.edu's entry if one exists.
	if i := strings.Index(domain, "."); i >= 0 {
		if v, ok := domainAuthorityTable[domain[i+1:]]; ok {
			return v, true
		}
	}
	switch {
	case strings.HasSuffix(domain, ".gov"):
		return 0.9, true
	case strings.HasSuffix(domain, ".edu"):
		return 0.85, true
	}
	return 0, false
}
