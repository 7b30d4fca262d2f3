package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/papercite/papercite/pkg/component/milvus"
)

// MilvusStore implements VectorStore on a Milvus collection with an HNSW
// index, for corpora where exact search no longer scales.
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

// MilvusStoreConfig configures the backing collection.
type MilvusStoreConfig struct {
	// Collection is the Milvus collection name.
	Collection string
	// Dimension is the embedding vector dimension.
	Dimension int
}

// NewMilvusStore creates the store and ensures its collection exists and
// is loaded.
func NewMilvusStore(ctx context.Context, client *milvus.Client, cfg *MilvusStoreConfig) (*MilvusStore, error) {
	schema := &milvus.CollectionSchema{
		Name:        cfg.Collection,
		Description: "Embedded document chunks with page provenance",
		Dimension:   cfg.Dimension,
		IDMaxLen:    512,
		MetaFields: []milvus.MetaField{
			{Name: "doc_id", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "page", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	if err := client.EnsureCollection(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", cfg.Collection, err)
	}

	return &MilvusStore{
		client:     client,
		collection: cfg.Collection,
	}, nil
}

// Upsert writes records into the collection keyed by chunk id.
func (s *MilvusStore) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	metadata := map[string][]any{
		"doc_id":  make([]any, len(records)),
		"page":    make([]any, len(records)),
		"content": make([]any, len(records)),
	}

	for i, r := range records {
		ids[i] = r.ChunkID
		embeddings[i] = r.Embedding
		metadata["doc_id"][i] = r.DocID
		metadata["page"][i] = int64(r.Page)
		metadata["content"][i] = r.Content
	}

	data := &milvus.UpsertData{
		IDs:        ids,
		Embeddings: embeddings,
		Metadata:   metadata,
	}

	if err := s.client.Upsert(ctx, s.collection, data); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

// Search performs a cosine-similarity search against the collection.
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error) {
	if topK <= 0 {
		return []*SearchResult{}, nil
	}

	results, err := s.client.Search(ctx, s.collection, embedding, topK, []string{"doc_id", "page", "content"})
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		sr := &SearchResult{
			ChunkID: r.ID,
			Score:   float64(r.Score),
		}
		if v, ok := r.Metadata["doc_id"].(string); ok {
			sr.DocID = v
		}
		if v, ok := r.Metadata["page"].(int64); ok {
			sr.Page = int(v)
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		searchResults = append(searchResults, sr)
	}

	// Milvus already ranks by score; re-sort with the chunk-id tiebreak so
	// equal scores come back in the same order as the other backends.
	sort.SliceStable(searchResults, func(i, j int) bool {
		if searchResults[i].Score != searchResults[j].Score {
			return searchResults[i].Score > searchResults[j].Score
		}
		return searchResults[i].ChunkID < searchResults[j].ChunkID
	})

	return searchResults, nil
}

// DeleteDocument removes every record belonging to docID.
func (s *MilvusStore) DeleteDocument(ctx context.Context, docID string) error {
	expr := fmt.Sprintf("doc_id == %q", docID)
	if err := s.client.DeleteByExpr(ctx, s.collection, expr); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

// ListDocuments returns the distinct document ids in the collection.
func (s *MilvusStore) ListDocuments(ctx context.Context) ([]string, error) {
	values, err := s.client.QueryField(ctx, s.collection, "", "doc_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	seen := make(map[string]struct{}, len(values))
	docs := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		docs = append(docs, v)
	}
	sort.Strings(docs)
	return docs, nil
}

// Count returns the number of records in the collection.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
