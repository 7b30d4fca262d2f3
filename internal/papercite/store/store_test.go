package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercite/papercite/internal/papercite/store"
	sqliteopts "github.com/papercite/papercite/pkg/options/sqlite"
)

// newStores returns every backend that can run without external services.
// Both must satisfy the same contract, so every test runs against both.
func newStores(t *testing.T) map[string]store.VectorStore {
	t.Helper()

	sqliteStore, err := store.NewSQLiteStore(&sqliteopts.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close(context.Background()) })

	return map[string]store.VectorStore{
		"memory": store.NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func someRecords() []*store.Record {
	return []*store.Record{
		{ChunkID: "a.pdf__p1__c0", DocID: "a.pdf", Page: 1, Content: "alpha", Embedding: []float32{1, 0, 0}},
		{ChunkID: "a.pdf__p2__c0", DocID: "a.pdf", Page: 2, Content: "beta", Embedding: []float32{0, 1, 0}},
		{ChunkID: "b.pdf__p1__c0", DocID: "b.pdf", Page: 1, Content: "gamma", Embedding: []float32{0, 0, 1}},
	}
}

func TestStoreSearchRanking(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, someRecords()))

			results, err := s.Search(ctx, []float32{1, 0, 0}, 3)
			require.NoError(t, err)
			require.Len(t, results, 3)

			assert.Equal(t, "a.pdf__p1__c0", results[0].ChunkID)
			assert.InDelta(t, 1.0, results[0].Score, 0.0001)
			for i := 1; i < len(results); i++ {
				assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
			}
		})
	}
}

func TestStoreSearchTopKBound(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, someRecords()))

			results, err := s.Search(ctx, []float32{1, 1, 1}, 2)
			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestStoreSearchTieBreaksByChunkID(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Two records with identical embeddings score identically.
			records := []*store.Record{
				{ChunkID: "doc.pdf__p1__c1", DocID: "doc.pdf", Page: 1, Content: "x", Embedding: []float32{1, 0}},
				{ChunkID: "doc.pdf__p1__c0", DocID: "doc.pdf", Page: 1, Content: "y", Embedding: []float32{1, 0}},
			}
			require.NoError(t, s.Upsert(ctx, records))

			results, err := s.Search(ctx, []float32{1, 0}, 2)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "doc.pdf__p1__c0", results[0].ChunkID)
			assert.Equal(t, "doc.pdf__p1__c1", results[1].ChunkID)
		})
	}
}

func TestStoreSearchEmpty(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &store.Record{ChunkID: "a.pdf__p1__c0", DocID: "a.pdf", Page: 1, Content: "old", Embedding: []float32{1, 0}}
			require.NoError(t, s.Upsert(ctx, []*store.Record{rec}))

			rec2 := &store.Record{ChunkID: "a.pdf__p1__c0", DocID: "a.pdf", Page: 1, Content: "new", Embedding: []float32{0, 1}}
			require.NoError(t, s.Upsert(ctx, []*store.Record{rec2}))

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			results, err := s.Search(ctx, []float32{0, 1}, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "new", results[0].Content)
		})
	}
}

func TestStoreDeleteDocumentRemovesAllRecords(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, someRecords()))

			require.NoError(t, s.DeleteDocument(ctx, "a.pdf"))

			// No search can ever surface a deleted document's chunks.
			results, err := s.Search(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			for _, r := range results {
				assert.NotEqual(t, "a.pdf", r.DocID)
			}

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			docs, err := s.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b.pdf"}, docs)
		})
	}
}

func TestStoreListDocuments(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, someRecords()))

			docs, err := s.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.pdf", "b.pdf"}, docs)
		})
	}
}
