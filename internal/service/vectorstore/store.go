// Package vectorstore 管理每个 Profile 独占的向量索引
// 索引同时实现 eino 的 Indexer 与 Retriever 接口
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
)

// 后端类型
const (
	TypeDuckDB        = "duckdb"
	TypeElasticsearch = "elasticsearch"
	TypeES8           = "es8"
	TypeMemory        = "memory"
)

// ErrIndexNotFound 索引不存在
var ErrIndexNotFound = errors.New("index not found")

// Store 单个 Profile 的索引句柄
type Store interface {
	indexer.Indexer
	retriever.Retriever
	Close() error
}

// Backend 按 Profile 名称打开或重建索引
type Backend interface {
	// Reset 删除已有索引并创建空索引
	Reset(ctx context.Context, name string, emb embedding.Embedder) (Store, error)
	// Open 打开已有索引，不存在时返回 ErrIndexNotFound
	Open(ctx context.Context, name string, emb embedding.Embedder) (Store, error)
	// Exists 索引是否存在
	Exists(ctx context.Context, name string) (bool, error)
}

// New 按配置创建后端
func New(cfg *config.Config) (Backend, error) {
	topK := cfg.RAG.TopK
	if topK <= 0 {
		topK = 4
	}

	switch cfg.VectorStore.Type {
	case TypeDuckDB, "":
		return NewDuckDBBackend(cfg.Storage.IndexRoot, topK), nil
	case TypeElasticsearch, TypeES8:
		return NewESBackend(cfg.Elastic, cfg.Embedding.Dimensions, topK)
	case TypeMemory:
		return NewMemoryBackend(topK), nil
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.VectorStore.Type)
	}
}

func checkName(name string) error {
	if err := model.ValidateName(name); err != nil {
		return fmt.Errorf("invalid index name: %w", err)
	}
	return nil
}

// embedOne 向量化单条文本
func embedOne(ctx context.Context, emb embedding.Embedder, text string) ([]float64, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	vectors, err := emb.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("vector count mismatch: expected 1, got %d", len(vectors))
	}
	return vectors[0], nil
}

// embedAll 批量向量化
func embedAll(ctx context.Context, emb embedding.Embedder, texts []string) ([][]float64, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	vectors, err := emb.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed strings failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("vector count mismatch: expected %d, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// retrieveOptions 合并调用方选项
func retrieveOptions(topK int, emb embedding.Embedder, opts []retriever.Option) *retriever.Options {
	return retriever.GetCommonOptions(&retriever.Options{
		TopK:      &topK,
		Embedding: emb,
	}, opts...)
}
