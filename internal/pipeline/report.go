package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/budget"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/index"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/router"
)

const draftSystem = `You are a research writer. Use only the numbered evidence excerpts provided. Cite every factual claim with its [n] marker. Present the best-supported view first. If the evidence is thin or conflicting, say so plainly.`

const alternativesSystem = `You review research drafts for one-sidedness. From the same evidence, briefly present credible alternative interpretations or dissenting findings, each cited with its [n] marker. If there are none, answer with exactly: none.`

// synthesize turns the gathered evidence into the final report: build the
// citation-labeled evidence set, draft, validate sufficiency, remediate at
// most once, then write the report sections.
func (p *Pipeline) synthesize(ctx context.Context, h *handle, session AcquireSession, idx Indexer, monitor *budget.Monitor) error {
	if err := p.checkInterrupt(ctx, h); err != nil {
		return err
	}
	p.transition(h, StateDrafting, "building evidence set")
	draft, err := p.draftOnce(ctx, h, idx, monitor)
	if err != nil {
		return err
	}
	if draft.Unavailable() {
		p.transition(h, StateReporting, "generation unavailable")
		h.update(func(j *Job) {
			j.Report = Report{Main: unavailableReport(len(j.SourceIDs))}
			j.Replay = append(j.Replay, "no generation channel, emitted explanation instead of a draft")
		})
		p.persistArtifacts(h)
		return nil
	}

	p.transition(h, StateValidating, "checking sufficiency")
	skip := p.evalCfg.GroundingSkip
	if skip <= 0 {
		skip = 0.6
	}
	job := h.snapshot()
	if job.GroundingScore >= skip {
		p.replay(h, fmt.Sprintf("grounding %.2f, sufficiency check skipped", job.GroundingScore))
	} else {
		suff := p.eval.VerifySufficiency(ctx, job.Question, job.subQuestionTexts(), draft.Text)
		if !suff.Sufficient && job.RemediationUsed < p.cfg.RemediationLimit {
			if err := p.remediate(ctx, h, session, idx, suff.MissingTopics); err != nil {
				return err
			}
			redraft, err := p.draftOnce(ctx, h, idx, monitor)
			if err != nil {
				return err
			}
			if !redraft.Unavailable() {
				draft = redraft
			}
		} else if !suff.Sufficient {
			p.replay(h, "draft judged insufficient, remediation budget spent")
		}
	}

	p.transition(h, StateReporting, "writing report")
	alternatives := p.alternatives(ctx, h, monitor, draft.Text)
	h.update(func(j *Job) {
		j.Report = Report{Main: draft.Text, Alternatives: alternatives}
	})
	p.persistArtifacts(h)
	return nil
}

// draftOnce builds the deduplicated, citation-labeled evidence set, asks
// the router for a draft and derives the claim ledger and grounding score
// from it. Citation labels stay stable for the whole synthesis pass.
func (p *Pipeline) draftOnce(ctx context.Context, h *handle, idx Indexer, monitor *budget.Monitor) (router.Envelope, error) {
	if err := p.checkInterrupt(ctx, h); err != nil {
		return router.Envelope{}, err
	}
	job := h.snapshot()
	results, sourceURL := p.collectEvidence(ctx, idx, job)

	domainCap := p.evCfg.DomainCap
	if domainCap <= 0 {
		domainCap = 3
	}
	maxCitations := p.evCfg.MaxCitations
	if maxCitations <= 0 {
		maxCitations = 20
	}
	ordered := evidence.Deduplicate(results, sourceURL, domainCap)
	citations := evidence.AssignCitations(ordered, maxCitations)
	h.update(func(j *Job) { j.Citations = citations })

	env := p.gen.Generate(ctx, router.Request{
		System: draftSystem,
		Prompt: draftPrompt(job.Question, citations),
		Tier:   router.TierPrecise,
	})
	p.spend(h, monitor, env)
	if env.Unavailable() {
		return env, nil
	}

	maxClaims := p.evCfg.MaxClaims
	if maxClaims <= 0 {
		maxClaims = 20
	}
	claims := evidence.ExtractClaims(env.Text, maxClaims)
	grounding := evidence.ComputeGroundingScore(claims)
	h.update(func(j *Job) {
		j.Claims = claims
		j.GroundingScore = grounding
	})
	return env, nil
}

// collectEvidence queries the index for the question and every sub-question
// and merges the hits in rank order, first occurrence wins.
func (p *Pipeline) collectEvidence(ctx context.Context, idx Indexer, job *Job) ([]evidence.Result, map[string]string) {
	k := p.evCfg.MaxCitations
	if k <= 0 {
		k = 20
	}
	queries := append([]string{job.Question}, job.subQuestionTexts()...)
	seen := make(map[string]struct{})
	var results []evidence.Result
	sourceURL := make(map[string]string)
	for _, q := range queries {
		hits, err := idx.Search(ctx, q, k)
		if err != nil {
			p.logger.Printf("job %s: evidence search failed: %v", job.ID, err)
			continue
		}
		for _, hit := range hits {
			if _, dup := seen[hit.ChunkID]; dup {
				continue
			}
			seen[hit.ChunkID] = struct{}{}
			results = append(results, evidence.Result{
				ChunkID:  hit.ChunkID,
				SourceID: hit.SourceID,
				URL:      hit.URL,
				Title:    hit.Title,
				Excerpt:  hit.Snippet,
				Score:    hit.Score,
			})
			if hit.URL != "" {
				sourceURL[hit.SourceID] = hit.URL
			}
		}
	}
	return results, sourceURL
}

// remediate runs one extra acquisition round aimed at the missing topics.
// The source budget still applies; with no room left the redraft works from
// the existing evidence alone.
func (p *Pipeline) remediate(ctx context.Context, h *handle, session AcquireSession, idx Indexer, missing []string) error {
	if err := p.checkInterrupt(ctx, h); err != nil {
		return err
	}
	h.update(func(j *Job) {
		j.RemediationUsed++
		j.Replay = append(j.Replay, fmt.Sprintf("remediation: chasing %d missing topics", len(missing)))
	})

	queries := uniqueQueries(missing, nil)
	if len(queries) == 0 {
		queries = h.snapshot().Queries
	}
	p.transition(h, StateSearching, "remediation search")
	candidates := session.SearchMultiLane(ctx, queries, nil)
	if err := p.checkInterrupt(ctx, h); err != nil {
		return err
	}

	job := h.snapshot()
	remaining := job.TargetSources - len(job.SourceIDs)
	p.transition(h, StateAcquiring, fmt.Sprintf("remediation: %d candidates, budget %d", len(candidates), remaining))
	sources, health := session.Acquire(ctx, candidates, remaining)
	if err := p.checkInterrupt(ctx, h); err != nil {
		return err
	}
	p.mergeAcquired(h, sources, health)

	p.transition(h, StateExtracting, fmt.Sprintf("indexing %d remediation sources", len(sources)))
	for _, src := range sources {
		if err := p.checkInterrupt(ctx, h); err != nil {
			return err
		}
		if _, err := idx.AddDocument(ctx, index.Document{
			SourceID:    src.ID,
			URL:         src.URL,
			Title:       src.Title,
			Text:        src.Text,
			PublishedAt: src.PublishedAt,
		}); err != nil {
			p.logger.Printf("job %s: indexing %s failed: %v", job.ID, src.URL, err)
		}
	}
	p.transition(h, StateDrafting, "redrafting after remediation")
	return nil
}

// alternatives asks for credible dissenting readings of the same evidence.
// An unavailable channel leaves the section empty rather than failing the
// report.
func (p *Pipeline) alternatives(ctx context.Context, h *handle, monitor *budget.Monitor, draft string) string {
	if p.checkInterrupt(ctx, h) != nil {
		return ""
	}
	job := h.snapshot()
	if len(job.Citations) == 0 {
		return ""
	}
	env := p.gen.Generate(ctx, router.Request{
		System: alternativesSystem,
		Prompt: alternativesPrompt(job.Question, draft, job.Citations),
	})
	p.spend(h, monitor, env)
	if env.Unavailable() {
		return ""
	}
	text := strings.TrimSpace(env.Text)
	if strings.EqualFold(text, "none") || strings.EqualFold(text, "none.") {
		return ""
	}
	return text
}

// spend folds one generation call's usage into the budget monitor. A breach
// is noted in the replay log, not fatal: the draft in hand is still
// delivered.
func (p *Pipeline) spend(h *handle, monitor *budget.Monitor, env router.Envelope) {
	if monitor == nil {
		return
	}
	tokens := env.Usage.InputTokens + env.Usage.OutputTokens
	if err := monitor.Add(env.CostUSD, tokens); err != nil {
		p.replay(h, fmt.Sprintf("budget: %v", err))
	}
}

func (p *Pipeline) persistArtifacts(h *handle) {
	if p.store == nil {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	job := h.snapshot()
	for _, c := range job.Citations {
		if err := p.store.SaveCitation(ctx, job.ID, c); err != nil {
			p.logger.Printf("job %s: persisting citation failed: %v", job.ID, err)
		}
	}
	for _, c := range job.Claims {
		if err := p.store.SaveClaim(ctx, job.ID, c); err != nil {
			p.logger.Printf("job %s: persisting claim failed: %v", job.ID, err)
		}
	}
}

func draftPrompt(question string, citations []evidence.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nEvidence excerpts:\n\n", question)
	if len(citations) == 0 {
		b.WriteString("(no evidence was gathered)\n\n")
	}
	for _, c := range citations {
		fmt.Fprintf(&b, "%s %s (%s)\n%s\n\n", c.Label, c.Title, c.URL, c.Excerpt)
	}
	b.WriteString("Write the grounded answer now.")
	return b.String()
}

func alternativesPrompt(question, draft string, citations []evidence.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCurrent draft:\n%s\n\nEvidence excerpts:\n\n", question, draft)
	for _, c := range citations {
		fmt.Fprintf(&b, "%s %s (%s)\n%s\n\n", c.Label, c.Title, c.URL, c.Excerpt)
	}
	b.WriteString("List the credible alternative views now, or answer none.")
	return b.String()
}

func unavailableReport(sources int) string {
	return fmt.Sprintf("No generation channel was available to draft an answer. %d sources were gathered, indexed and cited; re-run the job once a provider is configured to produce the written report.", sources)
}
