package biz

import (
	"context"
	"sync"

	"github.com/papercite/papercite/pkg/llm"
)

// mockEmbedder returns fixed vectors keyed by text, falling back to a
// default vector for unknown inputs.
type mockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	calls    int
	err      error
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		vectors:  make(map[string][]float32),
		fallback: []float32{0, 0, 1},
	}
}

func (m *mockEmbedder) set(text string, vec []float32) { m.vectors[text] = vec }

func (m *mockEmbedder) embed(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return m.fallback
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.embed(t)
	}
	return out, nil
}

func (m *mockEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.embed(text), nil
}

func (m *mockEmbedder) Name() string { return "mock-embed" }

var _ llm.EmbeddingProvider = (*mockEmbedder)(nil)

// mockChat returns a canned response and counts completion calls.
type mockChat struct {
	mu       sync.Mutex
	response string
	usage    *llm.TokenUsage
	calls    int
	err      error
}

func (m *mockChat) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockChat) Generate(_ context.Context, _, _ string) (*llm.GenerateResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &llm.GenerateResponse{Content: m.response, TokenUsage: m.usage}, nil
}

func (m *mockChat) Name() string { return "mock-chat" }

var _ llm.ChatProvider = (*mockChat)(nil)

// unit returns a normalized copy of v for cosine-friendly test vectors.
func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / sqrt(sum))
	}
	return out
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 32; i++ {
		z = (z + x/z) / 2
	}
	return z
}

// repeat builds deterministic page text of a given rune length.
func repeatText(base string, length int) string {
	runes := []rune(base)
	out := make([]rune, length)
	for i := range out {
		out[i] = runes[i%len(runes)]
	}
	return string(out)
}

func chunkIDs(chunks []*Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
