// Package index maintains the per-job retrieval corpus: extracted passages
// chunked and indexed for BM25 over bleve, with in-memory vectors fused in by
// reciprocal rank when an embedder is configured.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/shellsage-ai/ResearchHive-sub000/tools/embedding"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	rrfK         = 60 // reciprocal-rank-fusion constant
	snippetLen   = 300
)

// Document is one acquired source ready for indexing.
type Document struct {
	SourceID    string
	URL         string
	Title       string
	Text        string
	PublishedAt string
}

// Chunk is one indexed passage of a document.
type Chunk struct {
	ID          string
	SourceID    string
	URL         string
	Title       string
	Text        string
	PublishedAt string
	ContentHash string
	Ordinal     int
	AddedAt     time.Time
}

// Hit is one retrieval result.
type Hit struct {
	ChunkID  string
	SourceID string
	URL      string
	Title    string
	Snippet  string
	Score    float64
	Rank     int
}

// indexDoc is the projection bleve scores against.
type indexDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Index struct {
	jobID    string
	embedder embedding.Client
	bleve    bleve.Index

	mu      sync.RWMutex
	meta    map[string]Chunk
	vectors []embedding.EmbedVec
}

// New builds an empty in-memory corpus for one job. embedder may be nil, in
// which case retrieval is BM25 only.
func New(jobID string, embedder embedding.Client) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("open corpus index: %w", err)
	}
	return &Index{
		jobID:    jobID,
		embedder: embedder,
		bleve:    idx,
		meta:     make(map[string]Chunk),
	}, nil
}

func (x *Index) JobID() string { return x.jobID }

// AddDocument chunks and indexes one document. Content already present is
// skipped, so re-ingesting after a resume is harmless. Returns the number of
// chunks newly indexed.
func (x *Index) AddDocument(ctx context.Context, doc Document) (int, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return 0, nil
	}
	hash := sha256Hex(text)
	now := time.Now()

	var fresh []Chunk
	for i, part := range splitChunks(text, chunkSize, chunkOverlap) {
		chunk := Chunk{
			ID:          fmt.Sprintf("%s#%03d", hash[:16], i),
			SourceID:    doc.SourceID,
			URL:         doc.URL,
			Title:       doc.Title,
			Text:        part,
			PublishedAt: doc.PublishedAt,
			ContentHash: hash,
			Ordinal:     i,
			AddedAt:     now,
		}
		x.mu.Lock()
		if _, dup := x.meta[chunk.ID]; dup {
			x.mu.Unlock()
			continue
		}
		x.meta[chunk.ID] = chunk
		x.mu.Unlock()

		if err := x.bleve.Index(chunk.ID, indexDoc{Title: chunk.Title, Text: chunk.Text}); err != nil {
			return len(fresh), fmt.Errorf("index chunk: %w", err)
		}
		fresh = append(fresh, chunk)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if x.embedder != nil {
		texts := make([]string, len(fresh))
		for i, c := range fresh {
			texts[i] = c.Text
		}
		vecs, err := x.embedder.EmbedMany(ctx, texts)
		if err == nil && len(vecs) == len(fresh) {
			x.mu.Lock()
			for i, c := range fresh {
				x.vectors = append(x.vectors, embedding.EmbedVec{DocID: c.ID, Vec: vecs[i]})
			}
			x.mu.Unlock()
		}
	}
	return len(fresh), nil
}

// Search retrieves the top k chunks for q, fusing the BM25 and vector lanes.
// Without an embedder or vectors the BM25 lane stands alone.
func (x *Index) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	if k <= 0 || k > 50 {
		k = 10
	}

	bmHits, err := x.bm25(q, k)
	if err != nil {
		return nil, err
	}

	var vecHits []Hit
	if x.embedder != nil && x.vectorCount() > 0 {
		qvec, err := x.embedder.Embed(ctx, q)
		if err == nil {
			vecHits = x.nearest(qvec, k)
		}
	}
	if len(vecHits) == 0 {
		return bmHits, nil
	}
	return fuseRRF(bmHits, vecHits, k), nil
}

// Chunks returns every indexed chunk, for report appendices.
func (x *Index) Chunks() []Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Chunk, 0, len(x.meta))
	for _, c := range x.meta {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (x *Index) Close() error { return x.bleve.Close() }

func (x *Index) bm25(q string, k int) ([]Hit, error) {
	query := bleve.NewMatchQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("corpus search: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		chunk := x.meta[hit.ID]
		out = append(out, Hit{
			ChunkID:  hit.ID,
			SourceID: chunk.SourceID,
			URL:      chunk.URL,
			Title:    chunk.Title,
			Snippet:  snippet(chunk.Text),
			Score:    hit.Score,
			Rank:     i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (x *Index) vectorCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

func (x *Index) nearest(qvec []float32, k int) []Hit {
	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(x.vectors))
	for _, v := range x.vectors {
		ranked = append(ranked, scored{id: v.DocID, score: embedding.Cosine(qvec, v.Vec)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []Hit
	for i, sc := range ranked {
		chunk := x.meta[sc.id]
		out = append(out, Hit{
			ChunkID:  sc.id,
			SourceID: chunk.SourceID,
			URL:      chunk.URL,
			Title:    chunk.Title,
			Snippet:  snippet(chunk.Text),
			Score:    sc.score,
			Rank:     i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out
}

func fuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	merged := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			entry, ok := merged[h.ChunkID]
			if !ok {
				entry = &agg{item: h}
				merged[h.ChunkID] = entry
			}
			entry.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	fused := make([]agg, 0, len(merged))
	for _, v := range merged {
		fused = append(fused, *v)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].item.ChunkID < fused[j].item.ChunkID
	})

	out := make([]Hit, 0, min(k, len(fused)))
	for i := 0; i < len(fused) && i < k; i++ {
		h := fused[i].item
		h.Score = fused[i].score
		h.Rank = i + 1
		out = append(out, h)
	}
	return out
}

// splitChunks cuts text into ~approx byte windows with the given overlap so
// passages that straddle a boundary stay retrievable.
func splitChunks(text string, approx, overlap int) []string {
	if len(text) <= approx {
		return []string{text}
	}
	step := approx - overlap
	if step <= 0 {
		step = approx
	}
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + approx
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	return s[:snippetLen] + "..."
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
