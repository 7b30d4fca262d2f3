package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercite/papercite/internal/papercite/store"
	"github.com/papercite/papercite/pkg/llm"
)

func salesResults() []*store.SearchResult {
	return []*store.SearchResult{
		{
			ChunkID: "doc.pdf__p1__c0",
			DocID:   "doc.pdf",
			Page:    1,
			Content: "The sales grew by 25% in Q3.",
			Score:   0.92,
		},
		{
			ChunkID: "doc.pdf__p2__c0",
			DocID:   "doc.pdf",
			Page:    2,
			Content: "No other notable changes.",
			Score:   0.41,
		},
	}
}

// With no retrieved chunks the composer must return the fixed refusal
// without ever calling the completion service.
func TestComposeRefusesWithoutSources(t *testing.T) {
	chat := &mockChat{response: "should never be used"}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "anything?", nil)
	require.NoError(t, err)

	assert.True(t, answer.Refused)
	assert.Equal(t, RefusalText, answer.Text)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, 0, chat.callCount(), "refusal must not call the completion service")
}

func TestComposeCallsModelExactlyOnce(t *testing.T) {
	chat := &mockChat{
		response: `Sales were strong: "sales grew by 25%" [Source: doc.pdf, Page 1].`,
		usage:    &llm.TokenUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "How did sales do?", salesResults())
	require.NoError(t, err)

	assert.Equal(t, 1, chat.callCount())
	assert.False(t, answer.Refused)
	require.NotNil(t, answer.TokenUsage)
	assert.Equal(t, 120, answer.TokenUsage.PromptTokens)
}

// A marker preceded by a quote is rewritten to canonical form carrying
// that quote as its snippet.
func TestComposeRewritesCitationMarker(t *testing.T) {
	chat := &mockChat{
		response: `The report says "sales grew by 25%" [Source: doc.pdf, Page 1].`,
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "How did sales do?", salesResults())
	require.NoError(t, err)

	assert.Contains(t, answer.Text, `[Source: doc.pdf, Page 1, "sales grew by 25%"]`)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc.pdf", answer.Citations[0].DocID)
	assert.Equal(t, 1, answer.Citations[0].Page)
	assert.Equal(t, "sales grew by 25%", answer.Citations[0].Snippet)
	assert.InDelta(t, 0.92, answer.Citations[0].Score, 1e-9)
}

// A marker with no nearby quote falls back to a truncated excerpt of the
// cited chunk.
func TestComposeSnippetFallsBackToChunkText(t *testing.T) {
	chat := &mockChat{
		response: `Sales increased in the third quarter [Source: doc.pdf, Page 1].`,
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "q", salesResults())
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "The sales grew by 25% in Q3.", answer.Citations[0].Snippet)
	assert.Contains(t, answer.Text, `[Source: doc.pdf, Page 1, "The sales grew by 25% in Q3."]`)
}

// Markers citing a document/page the retriever did not supply are
// stripped, never passed through.
func TestComposeStripsUnsuppliedSource(t *testing.T) {
	chat := &mockChat{
		response: `Sure thing [Source: invented.pdf, Page 9]. Also "sales grew by 25%" [Source: doc.pdf, Page 1].`,
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "q", salesResults())
	require.NoError(t, err)

	assert.NotContains(t, answer.Text, "invented.pdf")
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc.pdf", answer.Citations[0].DocID)
}

func TestComposeDeduplicatesCitations(t *testing.T) {
	chat := &mockChat{
		response: `"sales grew by 25%" [Source: doc.pdf, Page 1] and again "sales grew by 25%" [Source: doc.pdf, Page 1].`,
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "q", salesResults())
	require.NoError(t, err)

	assert.Len(t, answer.Citations, 1)
}

func TestComposeMarkerWithEmbeddedSnippet(t *testing.T) {
	chat := &mockChat{
		response: `Per the filing [Source: doc.pdf, Page 2, "No other notable changes."] nothing else moved.`,
	}
	c := NewComposer(chat, nil)

	answer, err := c.Compose(context.Background(), "q", salesResults())
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "No other notable changes.", answer.Citations[0].Snippet)
	assert.Equal(t, 2, answer.Citations[0].Page)
}

func TestComposeProviderFailure(t *testing.T) {
	chat := &mockChat{err: errors.New("model unavailable")}
	c := NewComposer(chat, nil)

	_, err := c.Compose(context.Background(), "q", salesResults())
	require.Error(t, err)

	var compErr *CompletionError
	assert.True(t, errors.As(err, &compErr))
}

func TestComposeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &mockChat{response: "unused"}
	c := NewComposer(chat, nil)

	_, err := c.Compose(ctx, "q", salesResults())
	require.Error(t, err)
	assert.Equal(t, 0, chat.callCount())
}

func TestFormatContext(t *testing.T) {
	got := formatContext(salesResults())

	assert.Contains(t, got, "---\nSource: doc.pdf, Page 1\nThe sales grew by 25% in Q3.\n---")
	assert.Contains(t, got, "---\nSource: doc.pdf, Page 2\nNo other notable changes.\n---")
}
