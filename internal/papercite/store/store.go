// Package store provides the vector store layer: durable persistence of
// embedded chunks and nearest-neighbor search over them.
package store

import (
	"context"
)

// Record is one embedded chunk persisted in the index. ChunkID is the
// primary key; upserting a record with an existing ChunkID replaces it.
type Record struct {
	// ChunkID is the stable chunk identifier, e.g. "report.pdf__p3__c1".
	ChunkID string
	// DocID is the owning document identifier (filename).
	DocID string
	// Page is the 1-based source page number.
	Page int
	// Content is the chunk text.
	Content string
	// Embedding is the chunk's vector.
	Embedding []float32
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	ChunkID string
	DocID   string
	Page    int
	Content string
	// Score is the cosine similarity to the query vector.
	Score float64
}

// VectorStore is the persistence interface for embedded chunks. All
// implementations order Search results by descending score, breaking ties
// by ascending chunk id so results are deterministic.
type VectorStore interface {
	// Upsert writes records, replacing any existing record with the same
	// chunk id. Records are durable when Upsert returns.
	Upsert(ctx context.Context, records []*Record) error

	// Search returns up to topK records nearest to embedding by cosine
	// similarity. Searching an empty store returns an empty slice.
	Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error)

	// DeleteDocument removes every record belonging to docID.
	DeleteDocument(ctx context.Context, docID string) error

	// ListDocuments returns the distinct document ids in the store,
	// sorted ascending.
	ListDocuments(ctx context.Context) ([]string, error)

	// Count returns the number of records in the store.
	Count(ctx context.Context) (int64, error)

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
