package biz

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/papercite/papercite/internal/papercite/store"
	"github.com/papercite/papercite/internal/pkg/textutil"
	"github.com/papercite/papercite/pkg/llm"
)

// RefusalText is the fixed answer returned when retrieval finds nothing
// relevant. The completion service is never called in that case.
const RefusalText = "I cannot find relevant information in the provided documents to answer this question."

// DefaultSystemPrompt instructs the model to answer only from the supplied
// excerpts, cite with [Source: filename, Page X] markers, and quote
// verbatim.
const DefaultSystemPrompt = `You are a helpful document assistant. Answer questions based ONLY on the provided source documents.

CRITICAL RULES:
1. ONLY use information from the provided sources. Never use external knowledge.
2. If the sources don't contain relevant information, say "I cannot find information about this in the provided documents."
3. Always cite your sources using the format: [Source: filename, Page X]
4. When quoting text, use exact quotes from the sources.
5. Be concise and accurate.

You will receive context from documents in this format:
---
Source: [filename], Page [number]
[text content]
---

Base your answer ONLY on these sources.`

// Citation verification statuses.
const (
	CitationVerified = "verified"
	CitationRemoved  = "removed"
	CitationFlagged  = "flagged"
)

// Citation points an answer at its source: document, page, and the quoted
// snippet the answer relies on.
type Citation struct {
	DocID   string  `json:"doc_id"`
	Page    int     `json:"page"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	// Status is set by the quote verifier.
	Status string `json:"status"`
}

// Answer is the composed response: text, citations, and whether the
// system refused for lack of relevant sources.
type Answer struct {
	Text          string          `json:"text"`
	Citations     []*Citation     `json:"citations"`
	Refused       bool            `json:"refused"`
	RefusalReason string          `json:"refusal_reason,omitempty"`
	TokenUsage    *llm.TokenUsage `json:"token_usage,omitempty"`
}

// ComposerConfig configures answer composition.
type ComposerConfig struct {
	// SystemPrompt overrides the default grounding prompt.
	SystemPrompt string
	// SnippetMaxLen caps citation snippets built from chunk text when the
	// model cited a source without quoting it.
	SnippetMaxLen int
}

// DefaultComposerConfig returns the default composer parameters.
func DefaultComposerConfig() *ComposerConfig {
	return &ComposerConfig{
		SystemPrompt:  DefaultSystemPrompt,
		SnippetMaxLen: 150,
	}
}

// Composer builds the grounded prompt, invokes the completion service
// exactly once, and rewrites the model's citation markers into canonical
// form.
type Composer struct {
	chatProvider llm.ChatProvider
	config       *ComposerConfig
}

// NewComposer creates a composer.
func NewComposer(chatProvider llm.ChatProvider, config *ComposerConfig) *Composer {
	if config == nil {
		config = DefaultComposerConfig()
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.SnippetMaxLen <= 0 {
		config.SnippetMaxLen = 150
	}
	return &Composer{
		chatProvider: chatProvider,
		config:       config,
	}
}

// Compose answers the question from the retrieved chunks. With no chunks
// it returns the fixed refusal without calling the model. Otherwise it
// calls the completion service once and rewrites citations; any provider
// failure aborts the request with a CompletionError.
func (c *Composer) Compose(ctx context.Context, question string, results []*store.SearchResult) (*Answer, error) {
	if len(results) == 0 {
		return &Answer{
			Text:          RefusalText,
			Citations:     []*Citation{},
			Refused:       true,
			RefusalReason: "no relevant sources found",
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before generation: %w", err)
	}

	prompt := fmt.Sprintf("Context from documents:\n\n%s\n\nQuestion: %s", formatContext(results), question)

	logger.Infow("calling completion service", "sources", len(results), "question_length", len(question))
	resp, err := c.chatProvider.Generate(ctx, prompt, c.config.SystemPrompt)
	if err != nil {
		return nil, &CompletionError{Err: err}
	}

	text, citations := c.rewriteCitations(resp.Content, results)

	return &Answer{
		Text:       text,
		Citations:  citations,
		TokenUsage: resp.TokenUsage,
	}, nil
}

// formatContext renders retrieved chunks as labeled excerpts.
func formatContext(results []*store.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("---\nSource: %s, Page %d\n%s\n---", r.DocID, r.Page, r.Content)
	}
	return strings.Join(parts, "\n\n")
}

// citationMarkerRegex matches the [Source: file, Page N] markers the model
// is instructed to emit, tolerating an already-canonical trailing snippet.
var citationMarkerRegex = regexp.MustCompile(`\[Source:\s*([^,\]]+?),\s*[Pp]age\s+(\d+)(?:,\s*"([^"]*)")?\]`)

// quoteBeforeRegex finds the last double-quoted span in a stretch of text.
var quoteBeforeRegex = regexp.MustCompile(`"([^"]+)"[^"]*$`)

// rewriteCitations replaces every citation marker with its canonical form
// [Source: <document>, Page <n>, "<snippet>"] and collects one Citation
// per distinct cited chunk. Markers naming a document/page pair that was
// not supplied in results are a composition defect: they are logged and
// stripped, never passed through.
func (c *Composer) rewriteCitations(text string, results []*store.SearchResult) (string, []*Citation) {
	type sourceKey struct {
		doc  string
		page int
	}
	supplied := make(map[sourceKey]*store.SearchResult, len(results))
	for _, r := range results {
		key := sourceKey{doc: r.DocID, page: r.Page}
		if _, ok := supplied[key]; !ok {
			supplied[key] = r
		}
	}

	var citations []*Citation
	seen := make(map[string]struct{})

	matches := citationMarkerRegex.FindAllStringSubmatchIndex(text, -1)
	var sb strings.Builder
	last := 0

	for _, m := range matches {
		start, end := m[0], m[1]
		doc := strings.TrimSpace(text[m[2]:m[3]])
		page, _ := strconv.Atoi(text[m[4]:m[5]])

		sb.WriteString(text[last:start])
		last = end

		src, ok := supplied[sourceKey{doc: doc, page: page}]
		if !ok {
			logger.Errorw("model cited an unsupplied source, stripping marker",
				"doc", doc, "page", page)
			continue
		}

		snippet := ""
		if m[6] >= 0 {
			// Marker already carried a snippet.
			snippet = text[m[6]:m[7]]
		}
		if snippet == "" {
			// Use the quote immediately preceding the marker, if any.
			if qm := quoteBeforeRegex.FindStringSubmatch(text[lookbackStart(start):start]); qm != nil {
				snippet = qm[1]
			}
		}
		if snippet == "" {
			snippet = textutil.TruncateString(src.Content, c.config.SnippetMaxLen)
		}

		sb.WriteString(fmt.Sprintf("[Source: %s, Page %d, %q]", doc, page, snippet))

		dedupe := fmt.Sprintf("%s|%d|%s", doc, page, snippet)
		if _, ok := seen[dedupe]; ok {
			continue
		}
		seen[dedupe] = struct{}{}
		citations = append(citations, &Citation{
			DocID:   doc,
			Page:    page,
			Snippet: snippet,
			Score:   src.Score,
		})
	}
	sb.WriteString(text[last:])

	return sb.String(), citations
}

// lookbackStart bounds how far behind a marker the composer searches for
// the quote it cites.
func lookbackStart(pos int) int {
	const lookback = 300
	if pos < lookback {
		return 0
	}
	return pos - lookback
}
