package evidence

import (
	"math"
	"reflect"
	"testing"
)

func chunk(id, url string) Result {
	return Result{ChunkID: id, SourceID: id, URL: url}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestDeduplicatePartitionsByDomain(t *testing.T) {
	t.Parallel()

	in := []Result{
		chunk("a1", "https://a.example/1"),
		chunk("a2", "https://a.example/2"),
		chunk("a3", "https://a.example/3"),
		chunk("a4", "https://a.example/4"),
		chunk("a5", "https://a.example/5"),
		chunk("b1", "https://b.example/1"),
	}
	got := Deduplicate(in, nil, 3)

	if len(got) != len(in) {
		t.Fatalf("length changed: %d != %d", len(got), len(in))
	}
	want := []string{"a1", "a2", "a3", "b1", "a4", "a5"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	t.Parallel()

	in := []Result{
		chunk("a1", "https://a.example/1"),
		chunk("b1", "https://b.example/1"),
		chunk("a2", "https://a.example/2"),
		chunk("a3", "https://a.example/3"),
		chunk("a4", "https://a.example/4"),
		chunk("c1", "https://c.example/1"),
	}
	once := Deduplicate(in, nil, 3)
	twice := Deduplicate(once, nil, 3)
	if !reflect.DeepEqual(ids(once), ids(twice)) {
		t.Fatalf("second pass changed order: %v -> %v", ids(once), ids(twice))
	}
}

func TestDeduplicateResolvesThroughSourceMap(t *testing.T) {
	t.Parallel()

	in := []Result{
		{ChunkID: "x1", SourceID: "s1"},
		{ChunkID: "x2", SourceID: "s1"},
		{ChunkID: "x3", SourceID: "s1"},
		{ChunkID: "x4", SourceID: "s1"},
	}
	urls := map[string]string{"s1": "https://one.example/page"}
	got := Deduplicate(in, urls, 3)
	want := []string{"x1", "x2", "x3", "x4"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}
	// x4 must be overflow, which only happens if all four share a domain.
	if got[3].ChunkID != "x4" {
		t.Fatalf("expected x4 last")
	}
}

func TestAssignCitationsStableLabels(t *testing.T) {
	t.Parallel()

	in := []Result{
		chunk("a1", "https://a.example/1"),
		chunk("b1", "https://b.example/1"),
		chunk("c1", "https://c.example/1"),
	}
	got := AssignCitations(in, 20)
	if len(got) != 3 {
		t.Fatalf("citations = %d, want 3", len(got))
	}
	for i, c := range got {
		wantLabel := []string{"[1]", "[2]", "[3]"}[i]
		if c.Label != wantLabel || c.Index != i+1 {
			t.Fatalf("citation %d = %q/%d, want %q/%d", i, c.Label, c.Index, wantLabel, i+1)
		}
	}
}

func TestAssignCitationsRespectsCap(t *testing.T) {
	t.Parallel()

	in := make([]Result, 30)
	for i := range in {
		in[i] = chunk(string(rune('a'+i)), "https://a.example/x")
	}
	if got := AssignCitations(in, 20); len(got) != 20 {
		t.Fatalf("citations = %d, want 20", len(got))
	}
}

func TestExtractClaims(t *testing.T) {
	t.Parallel()

	draft := `# Findings

Grid scale storage deployments doubled over the last year [1].
- Battery cell prices fell by roughly a third in the same period [2].
Short line.
Some operators now treat four hour systems as the default build.

## Outlook
`
	claims := ExtractClaims(draft, 20)
	if len(claims) != 3 {
		t.Fatalf("claims = %d, want 3: %+v", len(claims), claims)
	}
	if claims[0].Kind != ClaimCited || claims[1].Kind != ClaimCited {
		t.Fatalf("cited claims mistagged: %+v", claims)
	}
	if claims[2].Kind != ClaimHypothesis {
		t.Fatalf("uncited claim mistagged: %+v", claims[2])
	}
}

func TestComputeGroundingScoreExact(t *testing.T) {
	t.Parallel()

	claims := []Claim{
		{Text: "a [1]", Kind: ClaimCited},
		{Text: "b [2]", Kind: ClaimCited},
		{Text: "c [3]", Kind: ClaimCited},
		{Text: "d", Kind: ClaimHypothesis},
		{Text: "e", Kind: ClaimHypothesis},
	}
	if got := ComputeGroundingScore(claims); math.Abs(got-0.6) > 1e-12 {
		t.Fatalf("score = %v, want 0.6", got)
	}
	if got := ComputeGroundingScore(nil); got != 0 {
		t.Fatalf("empty score = %v, want 0", got)
	}
}
