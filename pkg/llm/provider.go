// Package llm provides a unified abstraction over LLM providers.
// Embedding and chat may use different providers and models.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// EmbeddingProvider generates vector embeddings for text.
//
// Implementations must be deterministic: the same input and model version
// always produce the same vector.
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// ChatProvider generates text completions.
type ChatProvider interface {
	// Chat runs a multi-turn conversation.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, systemPrompt string) (*GenerateResponse, error)

	// Name returns the provider name.
	Name() string
}

// Message is a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GenerateResponse is the result of a single completion call.
type GenerateResponse struct {
	// Content is the generated text.
	Content string

	// TokenUsage reports token consumption when the provider exposes it.
	TokenUsage *TokenUsage
}

// TokenUsage reports token counts for one completion call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider supports both embedding and chat.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory builds a full provider from a configuration map.
type ProviderFactory func(config map[string]any) (Provider, error)

// registry holds registered provider factories.
var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider registers a provider factory under a name. Provider
// packages register themselves from init; importing one for side effects
// makes it available.
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider creates a full provider by name.
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	return factory(config)
}

// NewEmbeddingProvider creates an embedding provider by name.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider creates a chat provider by name.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders lists all registered provider names.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	return names
}
