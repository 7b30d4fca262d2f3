package biz

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned from constructors when configuration is
// rejected. Bad configuration never surfaces at call time.
var ErrInvalidConfig = errors.New("invalid configuration")

// IndexError wraps a vector store failure. The store is not retried here;
// retry policy belongs to the storage backend.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s failed: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding provider failure. It is surfaced
// verbatim; no answer is fabricated on top of it.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CompletionError wraps a chat provider failure (rate limit, timeout,
// content policy). The request fails hard; there is no fallback answer.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ExtractionError wraps a document text-extraction failure.
type ExtractionError struct {
	DocID string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.DocID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
