package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/service/file"
	"github.com/ashwinyue/rag-profiles/internal/service/knowledge"
	"github.com/ashwinyue/rag-profiles/internal/service/ollama"
	"github.com/ashwinyue/rag-profiles/internal/service/profile"
	"github.com/ashwinyue/rag-profiles/internal/service/provider"
	"github.com/ashwinyue/rag-profiles/internal/service/vectorstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Services 服务集合
type Services struct {
	Config   *config.Config
	Profiles *profile.Service
	Models   *ollama.Service
	Store    *profile.Store
}

type options struct {
	factory profile.ComponentFactory
	backend vectorstore.Backend
	cache   redis.Cmdable
}

// Option 替换默认依赖
type Option func(*options)

// WithComponentFactory 替换模型组件工厂
func WithComponentFactory(f profile.ComponentFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithBackend 替换向量索引后端
func WithBackend(b vectorstore.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCache 启用模型列表缓存
func WithCache(c redis.Cmdable) Option {
	return func(o *options) { o.cache = c }
}

// NewServices 创建所有服务并加载已持久化的 Profile
func NewServices(ctx context.Context, cfg *config.Config, opts ...Option) (*Services, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.factory == nil {
		o.factory = provider.NewFactory(cfg)
	}
	if o.backend == nil {
		backend, err := vectorstore.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		o.backend = backend
	}

	files, err := file.NewLocalStorage(cfg.Storage.FilesRoot)
	if err != nil {
		return nil, err
	}

	deps := &profile.Deps{
		Factory:   o.factory,
		Backend:   o.backend,
		Processor: knowledge.NewDocumentProcessor(cfg.Ingest),
		TopK:      cfg.RAG.TopK,
	}

	store := profile.NewStore(cfg.Storage.ProfilesFile, deps)
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	var modelOpts []ollama.Option
	if o.cache != nil {
		modelOpts = append(modelOpts, ollama.WithCache(o.cache, time.Duration(cfg.Redis.ModelsTTL)*time.Second))
	}

	log.Info().
		Str("vector_store", cfg.VectorStore.Type).
		Str("profiles_file", cfg.Storage.ProfilesFile).
		Str("ollama", cfg.Ollama.BaseURL).
		Msg("services initialized")

	return &Services{
		Config:   cfg,
		Profiles: profile.NewService(store, files),
		Models:   ollama.NewService(cfg.Ollama.BaseURL, modelOpts...),
		Store:    store,
	}, nil
}

// Close 释放所有 Profile 持有的资源
func (s *Services) Close() error {
	return s.Store.Close()
}
