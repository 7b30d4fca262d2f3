// Package papercite provides the papercite server implementation.
package papercite

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/papercite/papercite/internal/papercite/biz"
	llmopts "github.com/papercite/papercite/pkg/options/llm"
	logopts "github.com/papercite/papercite/pkg/options/logger"
	milvusopts "github.com/papercite/papercite/pkg/options/milvus"
	redisopts "github.com/papercite/papercite/pkg/options/redis"
	sqliteopts "github.com/papercite/papercite/pkg/options/sqlite"
)

// Vector store backend names.
const (
	BackendMilvus = "milvus"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options contains all papercite server options.
type Options struct {
	// HTTP contains the HTTP server configuration.
	HTTP *HTTPOptions `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Backend selects the vector store: milvus, sqlite or memory.
	Backend string `json:"backend" mapstructure:"backend"`

	// Milvus contains Milvus configuration, used when Backend is milvus.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// SQLite contains SQLite configuration, used when Backend is sqlite.
	SQLite *sqliteopts.Options `json:"sqlite" mapstructure:"sqlite"`

	// Embedding contains the embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains the chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// Pipeline contains chunking, retrieval and verification parameters.
	Pipeline *PipelineOptions `json:"pipeline" mapstructure:"pipeline"`

	// Cache contains the redis cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`

	// Workers contains the ingest worker pool configuration.
	Workers *WorkerOptions `json:"workers" mapstructure:"workers"`
}

// HTTPOptions configures the HTTP server.
type HTTPOptions struct {
	// Addr is the listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a whole request.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds writing a whole response. It must exceed the
	// ask timeout or long questions are cut off mid-response.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// IdleTimeout bounds keep-alive idle connections.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHTTPOptions returns HTTP server defaults.
func NewHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		Addr:            ":8085",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// PipelineOptions contains chunking, retrieval, composition and
// verification parameters.
type PipelineOptions struct {
	// ChunkSize is the chunk length in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between adjacent chunks on a page.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of chunks retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MinScore is the relevance threshold below which chunks are
	// discarded.
	MinScore float64 `json:"min-score" mapstructure:"min-score"`

	// Collection is the Milvus collection name.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the embedding vector dimension.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// SnippetMaxLen caps citation snippets derived from chunk text.
	SnippetMaxLen int `json:"snippet-max-len" mapstructure:"snippet-max-len"`

	// VerifyThreshold is the fuzzy-match similarity threshold for quote
	// verification.
	VerifyThreshold float64 `json:"verify-threshold" mapstructure:"verify-threshold"`

	// VerifyPolicy is what to do with unverified quotes: remove or flag.
	VerifyPolicy string `json:"verify-policy" mapstructure:"verify-policy"`

	// SystemPrompt overrides the default grounding prompt.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`
}

// NewPipelineOptions returns the default pipeline parameters.
func NewPipelineOptions() *PipelineOptions {
	return &PipelineOptions{
		ChunkSize:       500,
		ChunkOverlap:    50,
		TopK:            5,
		MinScore:        0.3,
		Collection:      "papercite_chunks",
		EmbeddingDim:    768, // nomic-embed-text dimension
		SnippetMaxLen:   150,
		VerifyThreshold: 0.85,
		VerifyPolicy:    biz.PolicyRemove,
	}
}

// CacheOptions configures the redis-backed answer and embedding caches.
type CacheOptions struct {
	// Enabled toggles caching entirely.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is the answer cache entry lifetime.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces answer cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// EmbeddingTTL is the embedding cache entry lifetime.
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	// Redis contains the redis connection configuration.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewCacheOptions returns the default cache configuration.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:      false,
		TTL:          1 * time.Hour,
		KeyPrefix:    "papercite:answer:",
		EmbeddingTTL: 24 * time.Hour,
		Redis:        redisopts.NewOptions(),
	}
}

// WorkerOptions configures the ingest worker pool.
type WorkerOptions struct {
	// Capacity is the number of concurrent embedding workers.
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// NewWorkerOptions returns the default worker pool configuration.
func NewWorkerOptions() *WorkerOptions {
	return &WorkerOptions{Capacity: 8}
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:      NewHTTPOptions(),
		Log:       logopts.NewOptions(),
		Backend:   BackendSQLite,
		Milvus:    milvusopts.NewOptions(),
		SQLite:    sqliteopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		Pipeline:  NewPipelineOptions(),
		Cache:     NewCacheOptions(),
		Workers:   NewWorkerOptions(),
	}
}

// AddFlags adds all server flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.HTTP.Addr, "http.addr", o.HTTP.Addr, "HTTP server listen address")
	fs.DurationVar(&o.HTTP.ReadTimeout, "http.read-timeout", o.HTTP.ReadTimeout, "HTTP read timeout")
	fs.DurationVar(&o.HTTP.WriteTimeout, "http.write-timeout", o.HTTP.WriteTimeout, "HTTP write timeout")
	fs.DurationVar(&o.HTTP.IdleTimeout, "http.idle-timeout", o.HTTP.IdleTimeout, "HTTP idle timeout")
	fs.DurationVar(&o.HTTP.ShutdownTimeout, "http.shutdown-timeout", o.HTTP.ShutdownTimeout, "Graceful shutdown timeout")

	o.Log.AddFlags(fs)

	fs.StringVar(&o.Backend, "backend", o.Backend, "Vector store backend (milvus, sqlite, memory)")
	o.Milvus.AddFlags(fs)
	o.SQLite.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")

	o.addPipelineFlags(fs)
	o.addCacheFlags(fs)

	fs.IntVar(&o.Workers.Capacity, "workers.capacity", o.Workers.Capacity, "Ingest worker pool capacity")
}

func (o *Options) addPipelineFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Pipeline.ChunkSize, "pipeline.chunk-size", o.Pipeline.ChunkSize, "Chunk size in characters")
	fs.IntVar(&o.Pipeline.ChunkOverlap, "pipeline.chunk-overlap", o.Pipeline.ChunkOverlap, "Overlap between adjacent chunks")
	fs.IntVar(&o.Pipeline.TopK, "pipeline.top-k", o.Pipeline.TopK, "Number of chunks retrieved per question")
	fs.Float64Var(&o.Pipeline.MinScore, "pipeline.min-score", o.Pipeline.MinScore, "Relevance threshold for retrieved chunks")
	fs.StringVar(&o.Pipeline.Collection, "pipeline.collection", o.Pipeline.Collection, "Milvus collection name")
	fs.IntVar(&o.Pipeline.EmbeddingDim, "pipeline.embedding-dim", o.Pipeline.EmbeddingDim, "Embedding vector dimension")
	fs.IntVar(&o.Pipeline.SnippetMaxLen, "pipeline.snippet-max-len", o.Pipeline.SnippetMaxLen, "Maximum citation snippet length")
	fs.Float64Var(&o.Pipeline.VerifyThreshold, "pipeline.verify-threshold", o.Pipeline.VerifyThreshold, "Fuzzy-match threshold for quote verification")
	fs.StringVar(&o.Pipeline.VerifyPolicy, "pipeline.verify-policy", o.Pipeline.VerifyPolicy, "Unverified quote policy (remove, flag)")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable redis caching")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Answer cache TTL")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Answer cache key prefix")
	fs.DurationVar(&o.Cache.EmbeddingTTL, "cache.embedding-ttl", o.Cache.EmbeddingTTL, "Embedding cache TTL")
	o.Cache.Redis.AddFlags(fs)
}

// Validate validates all options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}

	switch o.Backend {
	case BackendMilvus:
		for _, err := range o.Milvus.Validate() {
			return err
		}
	case BackendSQLite:
		for _, err := range o.SQLite.Validate() {
			return err
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q, want milvus, sqlite or memory", o.Backend)
	}

	for _, err := range o.Embedding.Validate() {
		return fmt.Errorf("embedding: %w", err)
	}
	for _, err := range o.Chat.Validate() {
		return fmt.Errorf("chat: %w", err)
	}

	if o.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk-size must be positive")
	}
	if o.Pipeline.ChunkOverlap < 0 || o.Pipeline.ChunkOverlap >= o.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.chunk-overlap must be in [0, chunk-size)")
	}
	if o.Pipeline.TopK <= 0 {
		return fmt.Errorf("pipeline.top-k must be positive")
	}
	if o.Pipeline.VerifyThreshold <= 0 || o.Pipeline.VerifyThreshold > 1 {
		return fmt.Errorf("pipeline.verify-threshold must be in (0, 1]")
	}
	if p := o.Pipeline.VerifyPolicy; p != biz.PolicyRemove && p != biz.PolicyFlag {
		return fmt.Errorf("pipeline.verify-policy must be %q or %q", biz.PolicyRemove, biz.PolicyFlag)
	}

	if o.Cache.Enabled {
		if err := o.Cache.Redis.Validate(); err != nil {
			return fmt.Errorf("cache.redis: %w", err)
		}
	}
	if o.Workers.Capacity <= 0 {
		return fmt.Errorf("workers.capacity must be positive")
	}

	return nil
}

// Complete fills in defaults the flags left unset.
func (o *Options) Complete() error {
	if err := o.Embedding.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.Chat.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
