package acquire

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/embedding"
	fetchmodels "github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch/models"
)

const (
	// fetchRetryLimit is the number of backed-off retries for transient
	// capture failures. Final outcome only is recorded.
	fetchRetryLimit = 1
	// gateEmbedChars bounds the text prefix sent to the embedder by the
	// post-fetch relevance gate.
	gateEmbedChars = 4000
	// overshootFactor bounds how far past the remaining budget a batch may
	// attempt before trimming back.
	overshootFactor = 2
)

// Acquire fetches candidates under a bounded gate and relevance-gates each
// page after capture. It attempts up to twice the remaining budget so that
// failed fetches do not starve the batch, then trims accepted sources back
// to the budget keeping the most relevant. Every attempted URL yields
// exactly one health entry; cancellation mid-batch drops the rest silently.
func (s *Session) Acquire(ctx context.Context, candidates []Candidate, remaining int) ([]Source, []SourceHealthEntry) {
	if remaining <= 0 || len(candidates) == 0 {
		return nil, nil
	}
	attempt := candidates
	if most := remaining * overshootFactor; len(attempt) > most {
		attempt = attempt[:most]
	}
	s.markSeen(attempt)

	slots := 2 * len(attempt)
	if lim := s.c.cfg.FetchConcurrencyCap; lim > 0 && slots > lim {
		slots = lim
	}
	if slots < 1 {
		slots = 1
	}
	sem := make(chan struct{}, slots)

	type outcome struct {
		source *Source
		health SourceHealthEntry
	}
	outcomes := make(chan outcome, len(attempt))
	var wg sync.WaitGroup
	for _, cand := range attempt {
		wg.Add(1)
		go func(cand Candidate) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}
			src, health := s.fetchAndGate(ctx, cand)
			outcomes <- outcome{source: src, health: health}
		}(cand)
	}
	wg.Wait()
	close(outcomes)

	var accepted []Source
	var health []SourceHealthEntry
	for o := range outcomes {
		health = append(health, o.health)
		if o.source != nil {
			accepted = append(accepted, *o.source)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Relevance != accepted[j].Relevance {
			return accepted[i].Relevance > accepted[j].Relevance
		}
		return accepted[i].Canonical < accepted[j].Canonical
	})
	if len(accepted) > remaining {
		accepted = accepted[:remaining]
	}
	return accepted, health
}

// fetchAndGate captures one page, retries once on transient failure, then
// classifies the outcome and applies the content relevance gate.
func (s *Session) fetchAndGate(ctx context.Context, cand Candidate) (*Source, SourceHealthEntry) {
	res, err := s.c.fetcher.Exec(ctx, cand.URL)
	for attempt := 0; attempt < fetchRetryLimit && err == nil && transientStatus(res.Status); attempt++ {
		if s.c.cfg.Backoff.Sleep(ctx, attempt) != nil {
			break
		}
		res, err = s.c.fetcher.Exec(ctx, cand.URL)
	}

	now := time.Now().UTC()
	entry := SourceHealthEntry{URL: cand.URL, At: now}
	if err != nil {
		entry.Status = HealthError
		entry.Reason = err.Error()
		return nil, entry
	}
	entry.HTTPStatus = res.Status

	switch {
	case res.Status == fetchmodels.StatusTimeout:
		entry.Status = HealthTimeout
		entry.Reason = "fetch timed out"
		return nil, entry
	case res.Status == fetchmodels.StatusUnreachable:
		entry.Status = HealthError
		entry.Reason = "fetch failed"
		return nil, entry
	case res.Paywalled || res.Status == 402:
		entry.Status = HealthPaywall
		entry.Reason = "paywall"
		return nil, entry
	case res.Status == 401 || res.Status == 403 || res.Status == 451:
		entry.Status = HealthBlocked
		entry.Reason = fmt.Sprintf("blocked with HTTP %d", res.Status)
		return nil, entry
	case res.Status != 200:
		entry.Status = HealthError
		entry.Reason = fmt.Sprintf("HTTP %d", res.Status)
		return nil, entry
	case strings.TrimSpace(res.Text) == "":
		entry.Status = HealthError
		entry.Reason = "no extractable text"
		return nil, entry
	}

	relevance, ok := s.gateRelevance(ctx, res.Text)
	if !ok {
		entry.Status = HealthRejected
		entry.Reason = "content below relevance thresholds"
		return nil, entry
	}
	entry.Status = HealthSuccess

	src := &Source{
		ID:          uuid.NewString(),
		URL:         cand.URL,
		Canonical:   cand.Canonical,
		Title:       firstNonEmpty(res.Title, cand.Title),
		Byline:      res.Byline,
		PublishedAt: firstNonEmpty(res.PublishedAt, cand.PublishedAt),
		Text:        res.Text,
		Channel:     cand.Channel,
		Relevance:   relevance,
		FetchedAt:   now,
	}
	return src, entry
}

// gateRelevance accepts a page when enough question terms appear in its
// text, falling back to cosine similarity against the cached question
// embedding when the overlap is inconclusive. Without an embedder the
// overlap alone decides.
func (s *Session) gateRelevance(ctx context.Context, text string) (float64, bool) {
	tokens := queryTokens(s.question, nil)
	overlap := textKeywordOverlap(text, tokens)
	low := s.c.cfg.Relevance.KeywordLowWater
	if low <= 0 {
		low = 0.08
	}
	if overlap >= low {
		return overlap, true
	}
	if s.c.embedder == nil {
		return overlap, overlap > 0
	}

	qvec := s.questionVector(ctx)
	if qvec == nil {
		return overlap, overlap > 0
	}
	sample := text
	if len(sample) > gateEmbedChars {
		sample = sample[:gateEmbedChars]
	}
	pvec, err := s.c.embedder.Embed(ctx, sample)
	if err != nil {
		return overlap, overlap > 0
	}
	cos := embedding.Cosine(qvec, pvec)
	threshold := s.c.cfg.Relevance.CosineAccept
	if threshold <= 0 {
		threshold = 0.55
	}
	if cos >= threshold {
		return cos, true
	}
	return cos, false
}

// questionVector embeds the job question once and reuses it for every page
// this session gates.
func (s *Session) questionVector(ctx context.Context) []float32 {
	s.qvecOnce.Do(func() {
		vec, err := s.c.embedder.Embed(ctx, s.question)
		if err != nil {
			s.c.logger.Printf("question embedding failed: %v", err)
			return
		}
		s.qvec = vec
	})
	return s.qvec
}

func (s *Session) markSeen(candidates []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		if c.Canonical != "" {
			s.seen[c.Canonical] = struct{}{}
		}
	}
}

// textKeywordOverlap is the fraction of question tokens found in the text.
func textKeywordOverlap(text string, tokens map[string]struct{}) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for t := range tokens {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func transientStatus(status int) bool {
	return status == fetchmodels.StatusTimeout || status == fetchmodels.StatusUnreachable
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
