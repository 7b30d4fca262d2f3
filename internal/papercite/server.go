package papercite

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papercite/papercite/internal/papercite/biz"
	"github.com/papercite/papercite/internal/papercite/handler"
	"github.com/papercite/papercite/internal/papercite/router"
	"github.com/papercite/papercite/internal/papercite/store"
	milvuscomp "github.com/papercite/papercite/pkg/component/milvus"
	"github.com/papercite/papercite/pkg/llm"
	"github.com/papercite/papercite/pkg/pool"

	// Register the LLM providers.
	_ "github.com/papercite/papercite/pkg/llm/ollama"
	_ "github.com/papercite/papercite/pkg/llm/openai"

	"github.com/papercite/papercite/pkg/app"
)

// Name is the name of the application.
const Name = "papercite"

// Server is the assembled papercite server with its owned resources.
type Server struct {
	httpServer  *http.Server
	httpOptions *HTTPOptions
	cleanups    []func()
}

// NewServer wires the vector store, providers, caches, worker pool and
// HTTP layer from the validated options.
func NewServer(ctx context.Context, opts *Options) (*Server, error) {
	// 1. Logger first so everything below logs structured.
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting papercite service...")

	srv := &Server{httpOptions: opts.HTTP}

	// 2. Vector store.
	vectorStore, err := srv.newVectorStore(ctx, opts)
	if err != nil {
		srv.close()
		return nil, err
	}
	srv.cleanups = append(srv.cleanups, func() { _ = vectorStore.Close(context.Background()) })
	logger.Infow("Vector store initialized", "backend", opts.Backend)

	// 3. Redis, when caching is on. A dead redis disables caching instead
	// of failing startup.
	redisClient := srv.newRedisClient(opts)

	var answerCache *biz.AnswerCache

	// 4. LLM providers.
	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	chatProvider, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider,
		"model", opts.Chat.Model,
	)

	if redisClient != nil {
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisClient, &llm.EmbeddingCacheConfig{
			Enabled: true,
			TTL:     opts.Cache.EmbeddingTTL,
		})
		answerCache = biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
			Enabled:   true,
			TTL:       opts.Cache.TTL,
			KeyPrefix: opts.Cache.KeyPrefix,
		})
		logger.Infow("Redis caches initialized", "answer_ttl", opts.Cache.TTL, "embedding_ttl", opts.Cache.EmbeddingTTL)
	}

	// 5. Ingest worker pool.
	workers, err := pool.New("ingest", &pool.Config{Capacity: opts.Workers.Capacity})
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	srv.cleanups = append(srv.cleanups, workers.Release)

	// 6. Service layer.
	svc, err := biz.NewPaperciteService(vectorStore, embedProvider, chatProvider, answerCache, workers, &biz.ServiceConfig{
		ChunkerConfig: &biz.ChunkerConfig{
			ChunkSize:    opts.Pipeline.ChunkSize,
			ChunkOverlap: opts.Pipeline.ChunkOverlap,
		},
		RetrieverConfig: &biz.RetrieverConfig{
			TopK:     opts.Pipeline.TopK,
			MinScore: opts.Pipeline.MinScore,
		},
		ComposerConfig: &biz.ComposerConfig{
			SystemPrompt:  opts.Pipeline.SystemPrompt,
			SnippetMaxLen: opts.Pipeline.SnippetMaxLen,
		},
		VerifierConfig: &biz.VerifierConfig{
			Threshold: opts.Pipeline.VerifyThreshold,
			Policy:    opts.Pipeline.VerifyPolicy,
		},
	})
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	logger.Infow("Papercite service initialized",
		"cache.enabled", answerCache != nil,
		"top_k", opts.Pipeline.TopK,
		"min_score", opts.Pipeline.MinScore,
		"verify_policy", opts.Pipeline.VerifyPolicy,
	)

	// 7. HTTP layer.
	engine := router.New(handler.NewHandler(svc))
	srv.httpServer = &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	logger.Info("Papercite service is ready")
	return srv, nil
}

// newVectorStore builds the configured vector store backend.
func (s *Server) newVectorStore(ctx context.Context, opts *Options) (store.VectorStore, error) {
	switch opts.Backend {
	case BackendMilvus:
		client, err := milvuscomp.New(opts.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		milvusStore, err := store.NewMilvusStore(ctx, client, &store.MilvusStoreConfig{
			Collection: opts.Pipeline.Collection,
			Dimension:  opts.Pipeline.EmbeddingDim,
		})
		if err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("failed to initialize milvus store: %w", err)
		}
		return milvusStore, nil

	case BackendSQLite:
		sqliteStore, err := store.NewSQLiteStore(opts.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		return sqliteStore, nil

	case BackendMemory:
		logger.Warn("Using in-memory vector store, data will not survive restarts")
		return store.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// newRedisClient connects to redis when caching is enabled, returning nil
// when caching is off or redis is unreachable.
func (s *Server) newRedisClient(opts *Options) *goredis.Client {
	if !opts.Cache.Enabled {
		logger.Info("Cache is disabled")
		return nil
	}

	redisOpts := opts.Cache.Redis
	client := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisOpts.Host, redisOpts.Port),
		Password:     redisOpts.Password,
		DB:           redisOpts.Database,
		MaxRetries:   redisOpts.MaxRetries,
		PoolSize:     redisOpts.PoolSize,
		MinIdleConns: redisOpts.MinIdleConns,
		DialTimeout:  redisOpts.DialTimeout,
		ReadTimeout:  redisOpts.ReadTimeout,
		WriteTimeout: redisOpts.WriteTimeout,
		PoolTimeout:  redisOpts.PoolTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warnw("failed to connect to redis, caching disabled", "error", err.Error())
		_ = client.Close()
		return nil
	}

	s.cleanups = append(s.cleanups, func() { _ = client.Close() })
	return client
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.httpOptions.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// close runs the accumulated cleanups in reverse order.
func (s *Server) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}
