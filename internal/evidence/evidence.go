// Package evidence builds the citation-labeled evidence set for a draft and
// measures how well the drafted text stays grounded on it.
package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/helpers"
)

// Result is one evidence chunk under consideration for citation.
type Result struct {
	ChunkID  string
	SourceID string
	URL      string
	Title    string
	Excerpt  string
	Score    float64
}

// Citation is a stable label bound to one evidence chunk. Labels are assigned
// once per draft and stay fixed across that synthesis pass.
type Citation struct {
	Label    string
	Index    int
	ChunkID  string
	SourceID string
	URL      string
	Title    string
	Excerpt  string
}

type ClaimKind string

const (
	ClaimCited      ClaimKind = "cited"
	ClaimHypothesis ClaimKind = "hypothesis"
)

// Claim is one extracted sentence from a draft, tagged by whether it carries
// a citation marker.
type Claim struct {
	Text string
	Kind ClaimKind
}

var citationMarker = regexp.MustCompile(`\[\d+\]`)

// Deduplicate caps each source domain at domainCap chunks in a primary
// partition, moves the rest to an overflow partition, and returns
// primary-then-overflow. Nothing is dropped and relative order inside each
// partition follows the input, so running it on its own output is a no-op.
func Deduplicate(results []Result, sourceURL map[string]string, domainCap int) []Result {
	if domainCap <= 0 || len(results) == 0 {
		return results
	}
	perDomain := make(map[string]int, len(results))
	primary := make([]Result, 0, len(results))
	var overflow []Result
	for _, r := range results {
		d := domainOf(r, sourceURL)
		if perDomain[d] < domainCap {
			perDomain[d]++
			primary = append(primary, r)
		} else {
			overflow = append(overflow, r)
		}
	}
	return append(primary, overflow...)
}

// AssignCitations gives one stable label per result in input order, capped at
// max for a top-level draft.
func AssignCitations(results []Result, max int) []Citation {
	if max <= 0 {
		max = len(results)
	}
	out := make([]Citation, 0, min(max, len(results)))
	for i, r := range results {
		if i >= max {
			break
		}
		out = append(out, Citation{
			Label:    fmt.Sprintf("[%d]", i+1),
			Index:    i + 1,
			ChunkID:  r.ChunkID,
			SourceID: r.SourceID,
			URL:      r.URL,
			Title:    r.Title,
			Excerpt:  r.Excerpt,
		})
	}
	return out
}

// ExtractClaims pulls claim-bearing lines out of drafted text: anything
// longer than 20 characters that is not a markdown header, with bullet
// prefixes stripped. Capped at max.
func ExtractClaims(text string, max int) []Claim {
	if max <= 0 {
		max = 20
	}
	var out []Claim
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, prefix := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(line[len(prefix):])
				break
			}
		}
		if len(line) <= 20 {
			continue
		}
		kind := ClaimHypothesis
		if citationMarker.MatchString(line) {
			kind = ClaimCited
		}
		out = append(out, Claim{Text: line, Kind: kind})
		if len(out) >= max {
			break
		}
	}
	return out
}

// ComputeGroundingScore returns the fraction of claims carrying a citation
// marker, 0 when there are none. Pure, no side effects.
func ComputeGroundingScore(claims []Claim) float64 {
	if len(claims) == 0 {
		return 0
	}
	cited := 0
	for _, c := range claims {
		if c.Kind == ClaimCited {
			cited++
		}
	}
	return float64(cited) / float64(len(claims))
}

// domainOf resolves a result's bucketing key: the URL's domain, falling back
// through the source-URL map, then to the source id so unknown-origin chunks
// do not all collapse into one bucket.
func domainOf(r Result, sourceURL map[string]string) string {
	if d := helpers.Domain(r.URL); d != "" {
		return d
	}
	if sourceURL != nil {
		if d := helpers.Domain(sourceURL[r.SourceID]); d != "" {
			return d
		}
	}
	return "source:" + r.SourceID
}
