// Package profile 管理 Profile 的生命周期：构建、训练、持久化与查询
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/knowledge"
	"github.com/ashwinyue/rag-profiles/internal/service/prompt"
	"github.com/ashwinyue/rag-profiles/internal/service/rag"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/ashwinyue/rag-profiles/internal/service/vectorstore"
	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/rs/zerolog/log"
)

// 错误定义
var (
	ErrProfileNotFound = fmt.Errorf("profile not found: %w", types.ErrNotFound)
	ErrProfileExists   = fmt.Errorf("profile already exists: %w", types.ErrInvalidState)
	ErrNotInitialized  = fmt.Errorf("profile is not initialized: %w", types.ErrInvalidState)
	ErrNotRAGPDF       = fmt.Errorf("profile is not of type '%s': %w", model.ProfileTypeRAGPDF, types.ErrInvalidState)
)

// ComponentFactory 按模型名创建 Eino 组件
type ComponentFactory interface {
	NewChatModel(ctx context.Context, modelName string) (einomodel.BaseChatModel, error)
	NewEmbedder(ctx context.Context, modelName string) (embedding.Embedder, error)
}

// Deps Profile 运行所需的依赖
type Deps struct {
	Factory   ComponentFactory
	Backend   vectorstore.Backend
	Processor *knowledge.DocumentProcessor
	TopK      int
}

// Profile 运行时 Profile
// recMu 保护持久化记录；mu 保护模型、索引与流水线
type Profile struct {
	recMu  sync.Mutex
	record *model.Profile

	deps *Deps

	// opMu 串行化对同一 Profile 的追加上传与重新训练
	opMu sync.Mutex

	mu        sync.RWMutex
	chatModel einomodel.BaseChatModel
	embedder  embedding.Embedder
	index     vectorstore.Store
	template  einoprompt.ChatTemplate
	pipeline  *rag.RAG
}

// New 校验记录并创建 Profile，不做任何 I/O
func New(record *model.Profile, deps *Deps) (*Profile, error) {
	if record == nil {
		return nil, fmt.Errorf("profile record is nil: %w", types.ErrInvalidInput)
	}
	rec := record.Clone()
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidInput, err)
	}
	return &Profile{record: rec, deps: deps}, nil
}

// Name 名称
func (p *Profile) Name() string {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	return p.record.Name
}

// Record 返回持久化记录的副本
func (p *Profile) Record() *model.Profile {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	return p.record.Clone()
}

// updateRecord 在锁内修改记录
func (p *Profile) updateRecord(fn func(r *model.Profile)) {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	fn(p.record)
}

// Initialized 是否已具备查询流水线
func (p *Profile) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline != nil
}

// Initialize 创建模型句柄，训练或打开索引，并组装查询流水线
// train 为 false 时索引不存在不视为错误
func (p *Profile) Initialize(ctx context.Context, train bool) error {
	return p.initialize(ctx, p.Record(), train)
}

// initialize 按给定记录初始化，记录本身不会被修改
// 模型创建或语料准备失败时保留原有索引与流水线
func (p *Profile) initialize(ctx context.Context, rec *model.Profile, train bool) error {
	logger := log.With().Str("profile", rec.Name).Str("model", rec.Model).Logger()

	p.mu.Lock()
	defer p.mu.Unlock()

	logger.Info().Bool("train", train).Msg("initializing profile")

	chatModel, err := p.deps.Factory.NewChatModel(ctx, rec.Model)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	embedder, err := p.deps.Factory.NewEmbedder(ctx, rec.Model)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	var prep *knowledge.Prepared
	if train && rec.Type.IsRAG() {
		prep, err = p.deps.Processor.Prepare(ctx, &knowledge.ProcessRequest{
			ProfileName: rec.Name,
			Type:        rec.Type,
			FilePaths:   rec.FilesPath,
		})
		if err != nil {
			return fmt.Errorf("failed to train profile %s: %w", rec.Name, err)
		}
	}

	p.pipeline = nil
	p.template = nil
	p.chatModel = chatModel
	p.embedder = embedder

	if err := p.closeIndex(); err != nil {
		logger.Warn().Err(err).Msg("failed to close previous index")
	}

	switch {
	case !rec.Type.IsRAG():
		if train {
			logger.Warn().Str("type", string(rec.Type)).Msg("training not supported for profile type")
		}
	case train:
		if err := p.train(ctx, rec, prep); err != nil {
			return err
		}
	default:
		p.openIndex(ctx, rec)
	}

	tpl, err := prompt.Build(ctx, rec.Language, rec.UseOnlyContext, rec.Prompt)
	if err != nil {
		logger.Error().Err(err).Msg("error creating prompt")
		return nil
	}
	p.template = tpl

	if !rec.Type.IsRAG() {
		logger.Info().Str("type", string(rec.Type)).Msg("no retrieval pipeline required")
		return nil
	}
	if p.index == nil {
		logger.Error().Msg("cannot create retrieval pipeline, index not loaded")
		return nil
	}

	pipeline, err := rag.New(ctx, &rag.Config{
		ChatModel: p.chatModel,
		Retriever: p.index,
		Template:  p.template,
		TopK:      p.deps.TopK,
	})
	if err != nil {
		return fmt.Errorf("failed to create retrieval pipeline: %w", err)
	}
	p.pipeline = pipeline

	logger.Info().Msg("retrieval pipeline created")
	return nil
}

// train 重建索引并写入已准备好的分块，调用方持有 mu
func (p *Profile) train(ctx context.Context, rec *model.Profile, prep *knowledge.Prepared) error {
	index, err := p.deps.Backend.Reset(ctx, rec.Name, p.embedder)
	if err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}

	if _, err := p.deps.Processor.Index(ctx, prep, index); err != nil {
		index.Close()
		return fmt.Errorf("failed to train profile %s: %w", rec.Name, err)
	}

	p.index = index
	return nil
}

// openIndex 打开已有索引，失败时保持未加载状态
func (p *Profile) openIndex(ctx context.Context, rec *model.Profile) {
	index, err := p.deps.Backend.Open(ctx, rec.Name, p.embedder)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotFound) {
			log.Warn().Str("profile", rec.Name).Msg("index does not exist")
		} else {
			log.Error().Err(err).Str("profile", rec.Name).Msg("failed to open index")
		}
		return
	}
	log.Info().Str("profile", rec.Name).Msg("index loaded")
	p.index = index
}

func (p *Profile) closeIndex() error {
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index = nil
	return err
}

// Query 执行检索问答
// 没有流水线时返回 ErrNotInitialized，且不会调用模型
func (p *Profile) Query(ctx context.Context, input string) (*rag.Answer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pipeline == nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrNotInitialized)
	}

	log.Info().Str("profile", p.Name()).Str("input", input).Msg("querying profile")
	return p.pipeline.Query(ctx, input)
}

// Close 释放索引
func (p *Profile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipeline = nil
	return p.closeIndex()
}

// String 返回简要描述
func (p *Profile) String() string {
	return p.Record().String()
}
