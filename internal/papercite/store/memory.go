package store

import (
	"context"
	"sort"
	"sync"

	"github.com/papercite/papercite/internal/pkg/textutil"
)

// MemoryStore is an in-memory VectorStore using exact brute-force search.
// It backs small corpora and tests, where exact search doubles as the
// ground truth for the approximate backends.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Upsert writes records, replacing existing chunk ids. Each record is
// copied so later caller mutations cannot corrupt the store.
func (s *MemoryStore) Upsert(ctx context.Context, records []*Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		cp := *r
		cp.Embedding = append([]float32(nil), r.Embedding...)
		s.records[r.ChunkID] = &cp
	}
	return nil
}

// Search scores every record against the query embedding.
func (s *MemoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*SearchResult{}, nil
	}

	s.mu.RLock()
	results := make([]*SearchResult, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, &SearchResult{
			ChunkID: r.ChunkID,
			DocID:   r.DocID,
			Page:    r.Page,
			Content: r.Content,
			Score:   textutil.CosineSimilarity(embedding, r.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes all records for docID.
func (s *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.DocID == docID {
			delete(s.records, id)
		}
	}
	return nil
}

// ListDocuments returns the distinct document ids, sorted.
func (s *MemoryStore) ListDocuments(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		seen[r.DocID] = struct{}{}
	}
	s.mu.RUnlock()

	docs := make([]string, 0, len(seen))
	for id := range seen {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	return docs, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

var _ VectorStore = (*MemoryStore)(nil)
