package evaluate

import (
	"context"
	"strings"
	"testing"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/router"
)

// scriptedGen returns canned texts in order, then repeats the last one.
type scriptedGen struct {
	texts []string
	calls int
}

func (g *scriptedGen) next() router.Envelope {
	i := g.calls
	if i >= len(g.texts) {
		i = len(g.texts) - 1
	}
	g.calls++
	return router.Envelope{Text: g.texts[i], Provider: "stub"}
}

func (g *scriptedGen) Generate(context.Context, router.Request) router.Envelope     { return g.next() }
func (g *scriptedGen) GenerateJSON(context.Context, router.Request) router.Envelope { return g.next() }

func unavailableGen() *scriptedGen {
	return &scriptedGen{texts: []string{router.UnavailablePrefix + " local: circuit open"}}
}

func newEvaluator(gen Generator) *Evaluator {
	return New(gen, config.EvaluateConfig{
		StopScore:       0.7,
		BudgetStopScore: 0.4,
		PivotScore:      0.25,
		GroundingSkip:   0.6,
		DeepSearchMax:   3,
	}, 8, nil)
}

func TestDecomposeParsesSubQuestions(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{texts: []string{
		`Here you go: {"sub_questions": ["What changed?", "Who is affected?", "What happens next?"]}`,
	}}
	got := newEvaluator(gen).Decompose(context.Background(), "What is happening with grid storage?")
	if len(got) != 3 || got[0] != "What changed?" {
		t.Fatalf("unexpected decomposition: %v", got)
	}
}

func TestDecomposeFallsBackToQuestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		gen  Generator
	}{
		{name: "unavailable", gen: unavailableGen()},
		{name: "unparseable", gen: &scriptedGen{texts: []string{"not json at all"}}},
		{name: "too few items", gen: &scriptedGen{texts: []string{`{"sub_questions": ["only one"]}`}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := newEvaluator(tt.gen).Decompose(context.Background(), "the question")
			if len(got) != 1 || got[0] != "the question" {
				t.Fatalf("fallback = %v, want [the question]", got)
			}
		})
	}
}

func TestEvaluateCoverageUsesModelVerdict(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{texts: []string{
		`{"score": 0.55, "answered": [1], "partial": [2], "unanswered": [3], "gaps": ["pricing data"]}`,
	}}
	subs := []string{"q1", "q2", "q3"}
	chunks := []EvidenceChunk{
		{SourceID: "s1", Domain: "a.example", Text: strings.Repeat("x", 500), Score: 0.8},
		{SourceID: "s2", Domain: "b.example", Text: strings.Repeat("y", 500), Score: 0.7},
	}
	got := newEvaluator(gen).EvaluateCoverage(context.Background(), "q", subs, chunks)
	if got.Heuristic {
		t.Fatalf("expected model verdict, got heuristic")
	}
	if got.Score != 0.55 {
		t.Fatalf("score = %v, want 0.55", got.Score)
	}
	if len(got.Answered) != 1 || got.Answered[0] != "q1" {
		t.Fatalf("answered = %v", got.Answered)
	}
	if len(got.Unanswered) != 1 || got.Unanswered[0] != "q3" {
		t.Fatalf("unanswered = %v", got.Unanswered)
	}
	if len(got.Gaps) != 1 || got.Gaps[0] != "pricing data" {
		t.Fatalf("gaps = %v", got.Gaps)
	}
}

func TestEvaluateCoverageFallsBackToHeuristic(t *testing.T) {
	t.Parallel()

	subs := []string{"q1", "q2"}
	chunks := []EvidenceChunk{
		{SourceID: "s1", Domain: "a.example", Text: strings.Repeat("x", 3000), Score: 0.9},
		{SourceID: "s2", Domain: "b.example", Text: strings.Repeat("y", 3000), Score: 0.8},
	}
	got := newEvaluator(unavailableGen()).EvaluateCoverage(context.Background(), "q", subs, chunks)
	if !got.Heuristic {
		t.Fatalf("expected heuristic path")
	}
	if got.Score <= 0 || got.Score > 1 {
		t.Fatalf("score out of range: %v", got.Score)
	}
	if len(got.Partial) != 2 {
		t.Fatalf("heuristic should mark all sub-questions partial: %v", got.Partial)
	}
	// Two sources against a target of eight must name a sources gap.
	found := false
	for _, g := range got.Gaps {
		if strings.HasPrefix(g, "more sources on") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing sources gap: %v", got.Gaps)
	}
}

func TestEvaluateCoverageSparseEvidenceSkipsModel(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{texts: []string{`{"score": 0.99}`}}
	got := newEvaluator(gen).EvaluateCoverage(context.Background(), "q",
		[]string{"q1", "q2"}, []EvidenceChunk{{SourceID: "s1", Text: "tiny"}})
	if !got.Heuristic {
		t.Fatalf("sparse evidence should use heuristic")
	}
	if gen.calls != 0 {
		t.Fatalf("model called %d times for sparse evidence", gen.calls)
	}
}

func TestDeepSearchQueriesCapped(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{texts: []string{
		`{"queries": ["alpha", "beta", "gamma", "delta", "epsilon"]}`,
	}}
	chunks := []EvidenceChunk{{SourceID: "s1", Text: "material"}}
	got := newEvaluator(gen).DeepSearchQueries(context.Background(), "q", chunks, 3)
	if len(got) != 3 {
		t.Fatalf("queries = %v, want 3 items", got)
	}

	if more := newEvaluator(unavailableGen()).DeepSearchQueries(context.Background(), "q", chunks, 3); more != nil {
		t.Fatalf("expected nil on unavailable model, got %v", more)
	}
}

func TestVerifySufficiencyParsesVerdict(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{texts: []string{
		`{"sufficient": false, "missing_topics": ["cost data"], "weak_claims": ["the market claim"]}`,
	}}
	got := newEvaluator(gen).VerifySufficiency(context.Background(), "q", nil, "a draft")
	if got.Sufficient {
		t.Fatalf("expected insufficient verdict")
	}
	if len(got.MissingTopics) != 1 || got.MissingTopics[0] != "cost data" {
		t.Fatalf("missing topics = %v", got.MissingTopics)
	}
}

func TestVerifySufficiencyFallbackUsesCitations(t *testing.T) {
	t.Parallel()

	cited := "Grid storage deployments doubled across the region last year [1]."
	got := newEvaluator(unavailableGen()).VerifySufficiency(context.Background(), "q", nil, cited)
	if !got.Sufficient {
		t.Fatalf("cited draft should pass the fallback")
	}

	bare := "Grid storage deployments doubled across the region last year."
	got = newEvaluator(unavailableGen()).VerifySufficiency(context.Background(), "q", nil, bare)
	if got.Sufficient {
		t.Fatalf("uncited draft should fail the fallback")
	}
}

func TestExtractFirstJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "surrounded by prose", in: `Sure: {"a": {"b": 2}} hope that helps`, want: `{"a": {"b": 2}}`},
		{name: "no object returns input", in: "plain text", want: "plain text"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractFirstJSON(tt.in); got != tt.want {
				t.Fatalf("extractFirstJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
