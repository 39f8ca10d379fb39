// Package evaluate decides whether gathered evidence actually answers the
// question: it decomposes the question into sub-questions, scores coverage,
// proposes drill-down queries, and grades drafted answers. Every LLM-assisted
// path degrades to a deterministic heuristic so the pipeline never stalls on
// a provider outage.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/router"
)

// Generator is the slice of the generation router the evaluator needs.
type Generator interface {
	Generate(ctx context.Context, req router.Request) router.Envelope
	GenerateJSON(ctx context.Context, req router.Request) router.Envelope
}

// EvidenceChunk is one acquired passage the evaluator scores against.
type EvidenceChunk struct {
	SourceID string
	Domain   string
	Text     string
	Score    float64
}

// CoverageResult reports how well current evidence answers the question.
type CoverageResult struct {
	Score      float64
	Gaps       []string
	Answered   []string
	Partial    []string
	Unanswered []string
	Heuristic  bool
}

// SufficiencyResult grades a finished draft.
type SufficiencyResult struct {
	Sufficient    bool
	MissingTopics []string
	WeakClaims    []string
}

type Evaluator struct {
	gen    Generator
	cfg    config.EvaluateConfig
	target int
	logger *log.Logger
}

func New(gen Generator, cfg config.EvaluateConfig, targetSources int, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.New(log.Writer(), "[EVAL] ", log.LstdFlags)
	}
	if targetSources <= 0 {
		targetSources = 8
	}
	return &Evaluator{gen: gen, cfg: cfg, target: targetSources, logger: logger}
}

// Decompose splits the question into 3-4 sub-questions. If the model yields
// fewer than 2 usable items the question itself is the only sub-question.
func (e *Evaluator) Decompose(ctx context.Context, question string) []string {
	env := e.gen.GenerateJSON(ctx, router.Request{
		System: "You split research questions into concrete, independently searchable sub-questions.",
		Prompt: fmt.Sprintf(
			"Break the question below into 3 or 4 sub-questions that together cover it. "+
				"Respond as {\"sub_questions\": [\"...\"]}.\n\nQuestion: %s", question),
		Tier: router.TierPrecise,
	})
	if env.Unavailable() {
		return []string{question}
	}

	var parsed struct {
		SubQuestions []string `json:"sub_questions"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(env.Text)), &parsed); err != nil {
		e.logger.Printf("decompose parse failed, using question as-is: %v", err)
		return []string{question}
	}
	usable := make([]string, 0, len(parsed.SubQuestions))
	for _, q := range parsed.SubQuestions {
		if q = strings.TrimSpace(q); q != "" {
			usable = append(usable, q)
		}
	}
	if len(usable) < 2 {
		return []string{question}
	}
	if len(usable) > 4 {
		usable = usable[:4]
	}
	return usable
}

// EvaluateCoverage scores how well the evidence answers the sub-questions.
// Trivial decompositions and sparse evidence go straight to the heuristic;
// otherwise the model produces a per-sub-question verdict, with the heuristic
// as the parse-failure fallback.
func (e *Evaluator) EvaluateCoverage(ctx context.Context, question string, subQuestions []string, chunks []EvidenceChunk) CoverageResult {
	if len(subQuestions) <= 1 || len(chunks) < 2 {
		return e.heuristicCoverage(question, subQuestions, chunks)
	}

	var sb strings.Builder
	for i, q := range subQuestions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	env := e.gen.GenerateJSON(ctx, router.Request{
		System: "You judge whether collected evidence answers a set of sub-questions.",
		Prompt: fmt.Sprintf(
			"Question: %s\n\nSub-questions:\n%s\nEvidence:\n%s\n"+
				"Grade the evidence. Respond as {\"score\": 0.0-1.0, \"answered\": [indices], "+
				"\"partial\": [indices], \"unanswered\": [indices], \"gaps\": [\"missing topic\"]}.",
			question, sb.String(), digestChunks(chunks, 12)),
		Tier: router.TierPrecise,
	})
	if env.Unavailable() {
		return e.heuristicCoverage(question, subQuestions, chunks)
	}

	var parsed struct {
		Score      float64  `json:"score"`
		Answered   []int    `json:"answered"`
		Partial    []int    `json:"partial"`
		Unanswered []int    `json:"unanswered"`
		Gaps       []string `json:"gaps"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(env.Text)), &parsed); err != nil {
		e.logger.Printf("coverage parse failed, falling back to heuristic: %v", err)
		return e.heuristicCoverage(question, subQuestions, chunks)
	}

	res := CoverageResult{
		Score:      clamp01(parsed.Score),
		Answered:   pickByIndex(subQuestions, parsed.Answered),
		Partial:    pickByIndex(subQuestions, parsed.Partial),
		Unanswered: pickByIndex(subQuestions, parsed.Unanswered),
	}
	for _, g := range parsed.Gaps {
		if g = strings.TrimSpace(g); g != "" {
			res.Gaps = append(res.Gaps, g)
		}
	}
	return res
}

// DeepSearchQueries derives up to max drill-down queries from the acquired
// content itself. Returns nil when the model cannot help; deep search is
// optional.
func (e *Evaluator) DeepSearchQueries(ctx context.Context, question string, chunks []EvidenceChunk, max int) []string {
	if len(chunks) == 0 {
		return nil
	}
	if max <= 0 || max > 3 {
		max = 3
	}
	env := e.gen.GenerateJSON(ctx, router.Request{
		System: "You mine gathered source material for follow-up search queries.",
		Prompt: fmt.Sprintf(
			"Original question: %s\n\nGathered material:\n%s\n"+
				"Propose at most %d short search queries that chase concepts, names or citations "+
				"appearing in the material but not yet explored. Respond as {\"queries\": [\"...\"]}.",
			question, digestChunks(chunks, 10), max),
		Tier: router.TierPrecise,
	})
	if env.Unavailable() {
		return nil
	}

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(env.Text)), &parsed); err != nil {
		return nil
	}
	out := make([]string, 0, max)
	for _, q := range parsed.Queries {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		out = append(out, q)
		if len(out) >= max {
			break
		}
	}
	return out
}

// VerifySufficiency grades a finished draft against the question. The
// fallback when the model is unavailable or unparseable accepts any draft
// that carries at least one cited claim.
func (e *Evaluator) VerifySufficiency(ctx context.Context, question string, subQuestions []string, draft string) SufficiencyResult {
	env := e.gen.GenerateJSON(ctx, router.Request{
		System: "You review research answers for completeness.",
		Prompt: fmt.Sprintf(
			"Question: %s\nSub-questions: %s\n\nDraft answer:\n%s\n\n"+
				"Does the draft adequately answer the question? Respond as {\"sufficient\": true|false, "+
				"\"missing_topics\": [\"...\"], \"weak_claims\": [\"...\"]}.",
			question, strings.Join(subQuestions, "; "), draft),
		Tier: router.TierPrecise,
	})
	if env.Unavailable() {
		return e.fallbackSufficiency(draft)
	}

	var parsed struct {
		Sufficient    bool     `json:"sufficient"`
		MissingTopics []string `json:"missing_topics"`
		WeakClaims    []string `json:"weak_claims"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(env.Text)), &parsed); err != nil {
		e.logger.Printf("sufficiency parse failed, using citation fallback: %v", err)
		return e.fallbackSufficiency(draft)
	}
	return SufficiencyResult{
		Sufficient:    parsed.Sufficient,
		MissingTopics: trimAll(parsed.MissingTopics),
		WeakClaims:    trimAll(parsed.WeakClaims),
	}
}

func (e *Evaluator) fallbackSufficiency(draft string) SufficiencyResult {
	claims := evidence.ExtractClaims(draft, 20)
	if len(claims) > 0 && evidence.ComputeGroundingScore(claims) > 0 {
		return SufficiencyResult{Sufficient: true}
	}
	return SufficiencyResult{
		Sufficient:    false,
		MissingTopics: []string{"cited evidence for the main claims"},
	}
}

// heuristicCoverage combines source count, mean relevance, domain diversity
// and text volume into a weighted score, naming a gap for each threshold not
// met. Sub-questions are all marked partial because the heuristic cannot
// adjudicate them individually.
func (e *Evaluator) heuristicCoverage(question string, subQuestions []string, chunks []EvidenceChunk) CoverageResult {
	sources := map[string]struct{}{}
	domains := map[string]struct{}{}
	volume := 0
	scoreSum, scored := 0.0, 0
	for _, c := range chunks {
		sources[c.SourceID] = struct{}{}
		d := c.Domain
		if d == "" {
			d = "source:" + c.SourceID
		}
		domains[d] = struct{}{}
		volume += len(c.Text)
		if c.Score > 0 {
			scoreSum += c.Score
			scored++
		}
	}
	meanScore := 0.5
	if scored > 0 {
		meanScore = clamp01(scoreSum / float64(scored))
	}

	ratio := clamp01(float64(len(sources)) / float64(e.target))
	diversity := clamp01(float64(len(domains)) / 4.0)
	volumeScore := clamp01(float64(volume) / 8000.0)
	score := 0.35*ratio + 0.25*meanScore + 0.2*diversity + 0.2*volumeScore

	topic := shortTopic(question)
	var gaps []string
	if len(sources) < e.target {
		gaps = append(gaps, "more sources on "+topic)
	}
	if meanScore < 0.4 {
		gaps = append(gaps, "higher quality coverage of "+topic)
	}
	if len(domains) < 2 {
		gaps = append(gaps, "alternative sources for "+topic)
	}
	if volume < 2000 {
		gaps = append(gaps, "detailed analysis of "+topic)
	}

	return CoverageResult{
		Score:     score,
		Gaps:      gaps,
		Partial:   append([]string(nil), subQuestions...),
		Heuristic: true,
	}
}

// digestChunks renders a bounded evidence digest for prompts.
func digestChunks(chunks []EvidenceChunk, max int) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i >= max {
			fmt.Fprintf(&sb, "(and %d further passages)\n", len(chunks)-max)
			break
		}
		text := c.Text
		if len(text) > 280 {
			text = text[:280]
		}
		label := c.Domain
		if label == "" {
			label = c.SourceID
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", label, strings.TrimSpace(text))
	}
	return sb.String()
}

// pickByIndex maps 1-based indices from a model verdict onto the
// sub-question list, discarding anything out of range.
func pickByIndex(items []string, indices []int) []string {
	var out []string
	for _, idx := range indices {
		if idx >= 1 && idx <= len(items) {
			out = append(out, items[idx-1])
		}
	}
	return out
}

// extractFirstJSON finds the first balanced top-level JSON object in a model
// response, tolerating prose around it.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}

func shortTopic(question string) string {
	words := strings.Fields(strings.TrimRight(strings.TrimSpace(question), "?"))
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.ToLower(strings.Join(words, " "))
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
