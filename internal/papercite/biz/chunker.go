package biz

import (
	"fmt"

	"github.com/papercite/papercite/internal/pkg/textutil"
)

// Page is one page of extracted document text. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a fixed-length, page-bounded passage carrying its provenance.
type Chunk struct {
	// ID is the stable chunk id: "<doc>__p<page>__c<index>".
	ID string
	// DocID is the owning document identifier.
	DocID string
	// Page is the 1-based source page number.
	Page int
	// Index is the chunk's position within its page, starting at 0.
	Index int
	// Start is the chunk's starting character offset within the page.
	Start int
	// Content is the chunk text.
	Content string
}

// ChunkerConfig configures the chunker.
type ChunkerConfig struct {
	// ChunkSize is the nominal chunk length in Unicode characters.
	ChunkSize int
	// ChunkOverlap is the overlap with the previous chunk on the same
	// page. Must be smaller than ChunkSize.
	ChunkOverlap int
}

// DefaultChunkerConfig returns the default chunking parameters.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

// Chunker splits page-tagged text into overlapping fixed-size chunks.
// Splitting is purely length-based, never sentence-aware, so provenance is
// deterministic and a chunk never crosses a page boundary.
type Chunker struct {
	config *ChunkerConfig
}

// NewChunker creates a chunker, rejecting bad parameters at construction.
func NewChunker(config *ChunkerConfig) (*Chunker, error) {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, config.ChunkOverlap, config.ChunkSize)
	}
	return &Chunker{config: config}, nil
}

// ChunkPages splits a document's pages into chunks, in page order. A page
// shorter than the chunk size yields exactly one chunk with the full page
// text; empty pages yield nothing.
func (c *Chunker) ChunkPages(docID string, pages []Page) []*Chunk {
	var chunks []*Chunk
	step := c.config.ChunkSize - c.config.ChunkOverlap

	for _, page := range pages {
		pieces := textutil.SplitIntoChunks(page.Text, c.config.ChunkSize, c.config.ChunkOverlap)
		for i, piece := range pieces {
			chunks = append(chunks, &Chunk{
				ID:      ChunkID(docID, page.Number, i),
				DocID:   docID,
				Page:    page.Number,
				Index:   i,
				Start:   i * step,
				Content: piece,
			})
		}
	}

	return chunks
}

// ChunkID builds the stable chunk identifier for a document page chunk.
func ChunkID(docID string, page, index int) string {
	return fmt.Sprintf("%s__p%d__c%d", docID, page, index)
}
