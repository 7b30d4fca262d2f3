package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/papercite/papercite/internal/papercite/metrics"
	"github.com/papercite/papercite/internal/papercite/store"
	"github.com/papercite/papercite/internal/pkg/extract"
	"github.com/papercite/papercite/pkg/llm"
	"github.com/papercite/papercite/pkg/pool"
)

// embedBatchSize is the number of chunks embedded per worker task.
const embedBatchSize = 16

// Service is the document question answering service.
type Service interface {
	// Ingest chunks, embeds and indexes the pages of one document,
	// replacing any previous version. It returns the number of chunks
	// written.
	Ingest(ctx context.Context, docID string, pages []Page) (int, error)
	// IngestPDF extracts page text from raw PDF bytes and ingests it.
	IngestPDF(ctx context.Context, docID string, data []byte) (int, error)
	// Remove deletes every chunk of the document.
	Remove(ctx context.Context, docID string) error
	// Ask answers a question from the indexed corpus. opts may be nil.
	Ask(ctx context.Context, question string, opts *AskOptions) (*AskResult, error)
	// ListDocuments returns the indexed document ids, sorted.
	ListDocuments(ctx context.Context) ([]string, error)
	// Stats reports corpus statistics.
	Stats(ctx context.Context) (map[string]any, error)
}

// AskOptions tunes one question. The zero value asks with the configured
// defaults over the whole corpus.
type AskOptions struct {
	// Document restricts retrieval to one document id.
	Document string
	// TopK overrides the configured result cap when positive.
	TopK int
	// MinScore overrides the configured relevance threshold when positive.
	MinScore float64
	// SkipVerify skips quote verification; the answer is returned as
	// composed and the result carries no verification report.
	SkipVerify bool
}

// scope renders the options as a canonical cache-key component.
func (o *AskOptions) scope() string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf("%s|%d|%g|%t", o.Document, o.TopK, o.MinScore, o.SkipVerify)
}

// validate rejects override values the retriever cannot honor.
func (o *AskOptions) validate() error {
	if o == nil {
		return nil
	}
	if o.TopK < 0 {
		return fmt.Errorf("%w: top-k override must not be negative, got %d", ErrInvalidConfig, o.TopK)
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return fmt.Errorf("%w: min-score override must be in [0, 1], got %v", ErrInvalidConfig, o.MinScore)
	}
	return nil
}

// AskResult bundles a verified answer with its verification report.
type AskResult struct {
	Answer       *Answer             `json:"answer"`
	Verification *VerificationReport `json:"verification,omitempty"`
	CacheHit     bool                `json:"cache_hit"`
}

// ServiceConfig aggregates the pipeline component configurations.
type ServiceConfig struct {
	ChunkerConfig   *ChunkerConfig
	RetrieverConfig *RetrieverConfig
	ComposerConfig  *ComposerConfig
	VerifierConfig  *VerifierConfig
}

// PaperciteService wires the chunker, retriever, composer and verifier
// into the full ingest/ask pipeline.
type PaperciteService struct {
	chunker       *Chunker
	retriever     *Retriever
	composer      *Composer
	verifier      *Verifier
	cache         *AnswerCache
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	extractor     extract.Extractor
	workers       *pool.Pool
	metrics       *metrics.Metrics
}

// NewPaperciteService creates the service. cache and workers may be nil;
// the service then answers without caching and embeds sequentially.
func NewPaperciteService(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *AnswerCache,
	workers *pool.Pool,
	config *ServiceConfig,
) (*PaperciteService, error) {
	if config == nil {
		config = &ServiceConfig{}
	}

	chunker, err := NewChunker(config.ChunkerConfig)
	if err != nil {
		return nil, err
	}
	retriever, err := NewRetriever(vectorStore, embedProvider, config.RetrieverConfig)
	if err != nil {
		return nil, err
	}
	verifier, err := NewVerifier(config.VerifierConfig)
	if err != nil {
		return nil, err
	}

	return &PaperciteService{
		chunker:       chunker,
		retriever:     retriever,
		composer:      NewComposer(chatProvider, config.ComposerConfig),
		verifier:      verifier,
		cache:         cache,
		store:         vectorStore,
		embedProvider: embedProvider,
		extractor:     extract.NewPDFExtractor(),
		workers:       workers,
		metrics:       metrics.GetMetrics(),
	}, nil
}

var _ Service = (*PaperciteService)(nil)

// Ingest indexes one document. The whole document is embedded before
// anything is written, so a failed ingest leaves the previous version of
// the document intact.
func (s *PaperciteService) Ingest(ctx context.Context, docID string, pages []Page) (int, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return 0, fmt.Errorf("%w: document id is empty", ErrInvalidConfig)
	}

	chunks := s.chunker.ChunkPages(docID, pages)
	if len(chunks) == 0 {
		logger.Warnw("document produced no chunks", "doc_id", docID)
		return 0, nil
	}

	records, err := s.embedChunks(ctx, chunks)
	if err != nil {
		s.metrics.RecordIngest(0, 0, err)
		return 0, err
	}

	// Re-ingesting replaces: drop the old chunks first so a shrunk
	// document leaves no stale tail behind, then upsert the new set.
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		s.metrics.RecordIngest(0, 0, err)
		return 0, &IndexError{Op: "delete", Err: err}
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		s.metrics.RecordIngest(0, 0, err)
		return 0, &IndexError{Op: "upsert", Err: err}
	}

	s.invalidateAnswers(ctx)
	s.metrics.RecordIngest(1, len(chunks), nil)

	logger.Infow("document ingested",
		"doc_id", docID,
		"pages", len(pages),
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// IngestPDF extracts text from raw PDF bytes and ingests the result.
func (s *PaperciteService) IngestPDF(ctx context.Context, docID string, data []byte) (int, error) {
	extracted, err := s.extractor.ExtractPages(ctx, data)
	if err != nil {
		s.metrics.RecordIngest(0, 0, err)
		return 0, &ExtractionError{DocID: docID, Err: err}
	}

	pages := make([]Page, 0, len(extracted))
	for _, p := range extracted {
		pages = append(pages, Page{Number: p.Number, Text: p.Text})
	}
	return s.Ingest(ctx, docID, pages)
}

// embedChunks embeds all chunks, batching them through the worker pool
// when one is available. Page order is preserved in the returned records.
func (s *PaperciteService) embedChunks(ctx context.Context, chunks []*Chunk) ([]*store.Record, error) {
	records := make([]*store.Record, len(chunks))

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batches = append(batches, batch{start: start, texts: texts})
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	for _, b := range batches {
		b := b
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				setErr(ctx.Err())
				return
			}
			embeddings, err := s.embedProvider.Embed(ctx, b.texts)
			if err != nil {
				setErr(&EmbeddingError{Err: err})
				return
			}
			if len(embeddings) != len(b.texts) {
				setErr(&EmbeddingError{Err: fmt.Errorf("got %d embeddings for %d texts", len(embeddings), len(b.texts))})
				return
			}
			for i, emb := range embeddings {
				c := chunks[b.start+i]
				records[b.start+i] = &store.Record{
					ChunkID:   c.ID,
					DocID:     c.DocID,
					Page:      c.Page,
					Content:   c.Content,
					Embedding: emb,
				}
			}
		}

		wg.Add(1)
		if s.workers != nil {
			if err := s.workers.Submit(task); err != nil {
				// Pool unavailable, run the batch inline.
				task()
			}
		} else {
			task()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

// Remove deletes a document and all of its chunks. Removing an unknown
// document is a no-op.
func (s *PaperciteService) Remove(ctx context.Context, docID string) error {
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return &IndexError{Op: "delete", Err: err}
	}

	s.invalidateAnswers(ctx)
	s.metrics.RecordRemove()

	logger.Infow("document removed", "doc_id", docID)
	return nil
}

// Ask answers a question against the indexed corpus with verified
// citations.
func (s *PaperciteService) Ask(ctx context.Context, question string, opts *AskOptions) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidConfig)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var askErr error
	defer func() {
		if askErr != nil {
			s.metrics.RecordAsk(false, false, askErr)
		}
	}()

	if s.cache != nil {
		answer, report, err := s.cache.Get(ctx, question, opts.scope())
		if err == nil && answer != nil {
			s.metrics.RecordAsk(true, answer.Refused, nil)
			return &AskResult{Answer: answer, Verification: report, CacheHit: true}, nil
		}
	}

	retrievalStart := time.Now()
	results, err := s.retriever.Retrieve(ctx, question, opts)
	s.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		askErr = err
		return nil, err
	}

	completionStart := time.Now()
	answer, err := s.composer.Compose(ctx, question, results)
	if err != nil {
		s.metrics.RecordCompletion(time.Since(completionStart), 0, 0, err)
		askErr = err
		return nil, err
	}
	if !answer.Refused {
		promptTokens, completionTokens := 0, 0
		if answer.TokenUsage != nil {
			promptTokens = answer.TokenUsage.PromptTokens
			completionTokens = answer.TokenUsage.CompletionTokens
		}
		s.metrics.RecordCompletion(time.Since(completionStart), promptTokens, completionTokens, nil)
	}

	var report *VerificationReport
	if opts == nil || !opts.SkipVerify {
		report = s.verifier.Verify(answer, results)
		removed := 0
		if s.verifier.config.Policy == PolicyRemove {
			removed = len(report.Unverified)
		}
		s.metrics.RecordVerification(report.Verified, len(report.Unverified), removed)
	}

	if s.cache != nil {
		s.cache.Set(ctx, question, opts.scope(), answer, report)
	}

	s.metrics.RecordAsk(false, answer.Refused, nil)
	return &AskResult{Answer: answer, Verification: report}, nil
}

// ListDocuments returns the indexed document ids.
func (s *PaperciteService) ListDocuments(ctx context.Context) ([]string, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, &IndexError{Op: "list", Err: err}
	}
	return docs, nil
}

// Stats reports corpus statistics.
func (s *PaperciteService) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, &IndexError{Op: "count", Err: err}
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, &IndexError{Op: "list", Err: err}
	}

	return map[string]any{
		"documents":          len(docs),
		"chunks":             count,
		"embedding_provider": s.embedProvider.Name(),
	}, nil
}

// invalidateAnswers drops all cached answers. Any corpus change can
// change what a question should answer, so the whole cache goes.
func (s *PaperciteService) invalidateAnswers(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		logger.Warnw("answer cache invalidation failed", "error", err.Error())
	}
}
