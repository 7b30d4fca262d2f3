package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/papercite/papercite/internal/papercite/store"
	"github.com/papercite/papercite/pkg/llm"
)

// RetrieverConfig configures retrieval.
type RetrieverConfig struct {
	// TopK is the maximum number of chunks to return.
	TopK int
	// MinScore is the relevance threshold. Results below it are
	// discarded; an empty post-filter result set means "no relevant
	// source" and the caller must refuse instead of calling the model.
	MinScore float64
}

// DefaultRetrieverConfig returns the default retrieval parameters.
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		TopK:     5,
		MinScore: 0.3,
	}
}

// Retriever embeds a question and finds the most relevant chunks.
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever creates a retriever.
func NewRetriever(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, config *RetrieverConfig) (*Retriever, error) {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	if config.TopK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", ErrInvalidConfig, config.TopK)
	}
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		config:        config,
	}, nil
}

// Retrieve embeds the question, searches the store, and returns at most
// top-k results scoring at least the minimum, in descending score order.
// opts may be nil; non-zero fields override the configured defaults.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts *AskOptions) ([]*store.SearchResult, error) {
	embedding, err := r.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	topK := r.config.TopK
	minScore := r.config.MinScore
	docFilter := ""
	if opts != nil {
		if opts.TopK > 0 {
			topK = opts.TopK
		}
		if opts.MinScore > 0 {
			minScore = opts.MinScore
		}
		docFilter = opts.Document
	}

	// Over-fetch when filtering by document so the filter does not eat
	// into the k results.
	fetch := topK
	if docFilter != "" {
		fetch *= 4
	}

	results, err := r.store.Search(ctx, embedding, fetch)
	if err != nil {
		return nil, &IndexError{Op: "search", Err: err}
	}

	filtered := make([]*store.SearchResult, 0, len(results))
	for _, res := range results {
		if res.Score < minScore {
			continue
		}
		if docFilter != "" && res.DocID != docFilter {
			continue
		}
		filtered = append(filtered, res)
		if len(filtered) == topK {
			break
		}
	}

	logger.Infow("retrieval complete",
		"question_length", len(question),
		"raw_results", len(results),
		"relevant_results", len(filtered),
		"min_score", minScore,
	)

	return filtered, nil
}
