// Package rag ranks snippets of the site owner's written material by semantic
// similarity and exposes namespace searches to the model as tools.
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/model"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EntryStore persists embedded entries.
type EntryStore interface {
	ReplaceEntries(ctx context.Context, namespace, key string, entries []model.RAGEntry) error
	ListEntries(ctx context.Context, namespace string) ([]model.RAGEntry, error)
}

// Result is one ranked entry.
type Result struct {
	Key   string  `json:"key"`
	Title string  `json:"title,omitempty"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// maxChunkBytes bounds a chunk produced by Ingest.
const maxChunkBytes = 1500

// Searcher searches and fills namespaces.
type Searcher struct {
	embedder Embedder
	store    EntryStore
}

// NewSearcher creates a searcher.
func NewSearcher(embedder Embedder, store EntryStore) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search returns up to limit entries of namespace ordered by descending similarity.
func (s *Searcher) Search(ctx context.Context, namespace, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	entries, err := s.store.ListEntries(ctx, namespace)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(entries))
	for i, e := range entries {
		results[i] = Result{
			Key:   e.Key,
			Title: e.Title,
			Text:  e.Text,
			Score: CosineSimilarity(vecs[0], e.Embedding),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Ingest chunks text, embeds every chunk and replaces the entries stored under key.
func (s *Searcher) Ingest(ctx context.Context, namespace, key, title, text string) (int, error) {
	chunks := Chunk(text, maxChunkBytes)
	if len(chunks) == 0 {
		return 0, s.store.ReplaceEntries(ctx, namespace, key, nil)
	}

	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}

	now := time.Now().UTC()
	entries := make([]model.RAGEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = model.RAGEntry{
			Namespace: namespace,
			Key:       key,
			Title:     title,
			Chunk:     i,
			Text:      c,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}
	if err := s.store.ReplaceEntries(ctx, namespace, key, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at most max
// bytes. A single paragraph longer than max is split on word boundaries and
// never shares a chunk with the next paragraph.
func Chunk(text string, max int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > max {
			flush()
		}
		if len(para) > max {
			for _, word := range strings.Fields(para) {
				if cur.Len() > 0 && cur.Len()+1+len(word) > max {
					flush()
				}
				if cur.Len() > 0 {
					cur.WriteByte(' ')
				}
				cur.WriteString(word)
			}
			flush()
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// OpenAIEmbedder embeds with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *llm.OpenAIClient
	model  string
}

// NewOpenAIEmbedder creates an embedder using model.
func NewOpenAIEmbedder(client *llm.OpenAIClient, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, e.model, texts)
}
