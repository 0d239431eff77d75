// Package rag 提供基于 Eino Graph 的检索增强问答编排
// 直接使用 eino compose.Graph，避免冗余封装
package rag

import (
	"context"
	"fmt"
	"strings"

	promptpkg "github.com/ashwinyue/rag-profiles/internal/service/prompt"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// 节点名
const (
	nodeInit     = "init"
	nodeRetrieve = "retrieve"
	nodePrompt   = "prompt"
	nodeGenerate = "generate"
)

// contextSeparator 拼接检索片段的分隔符
const contextSeparator = "\n\n"

// ========== RAG 状态 ==========

// State RAG 流程状态
type State struct {
	Query    string
	Docs     []*schema.Document
	Messages []*schema.Message
	Answer   string
}

// ToContext 将检索片段拼接为模板上下文
func (s *State) ToContext() string {
	parts := make([]string, 0, len(s.Docs))
	for _, d := range s.Docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, contextSeparator)
}

// Answer 查询结果
type Answer struct {
	Input   string           `json:"input"`
	Answer  string           `json:"answer"`
	Context []types.Document `json:"context"`
}

// ========== RAG Graph 配置 ==========

// Config RAG Graph 配置
type Config struct {
	ChatModel model.BaseChatModel
	Retriever retriever.Retriever
	Template  prompt.ChatTemplate
	TopK      int
}

// ========== RAG Graph ==========

// RAG 基于 Eino Graph 的检索问答编排器
type RAG struct {
	graph  compose.Runnable[string, *State]
	config *Config
}

// New 创建 RAG Graph
func New(ctx context.Context, cfg *Config) (*RAG, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg.Template == nil {
		return nil, fmt.Errorf("prompt template is required")
	}

	r := &RAG{config: cfg}

	graph, err := r.buildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	r.graph = graph
	return r, nil
}

// buildGraph init → retrieve → prompt → generate
func (r *RAG) buildGraph(ctx context.Context) (compose.Runnable[string, *State], error) {
	g := compose.NewGraph[string, *State]()

	initNode := compose.InvokableLambda(func(ctx context.Context, query string) (*State, error) {
		return &State{Query: query}, nil
	})
	retrieveNode := compose.InvokableLambda(r.processRetrieve)
	promptNode := compose.InvokableLambda(r.processPrompt)
	generateNode := compose.InvokableLambda(r.processGenerate)

	nodes := []struct {
		key    string
		lambda *compose.Lambda
	}{
		{nodeInit, initNode},
		{nodeRetrieve, retrieveNode},
		{nodePrompt, promptNode},
		{nodeGenerate, generateNode},
	}

	prev := compose.START
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, n.lambda, compose.WithNodeName(n.key)); err != nil {
			return nil, err
		}
		if err := g.AddEdge(prev, n.key); err != nil {
			return nil, err
		}
		prev = n.key
	}
	if err := g.AddEdge(prev, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx, compose.WithGraphName("rag"))
}

// processRetrieve 检索相关片段
func (r *RAG) processRetrieve(ctx context.Context, state *State) (*State, error) {
	var opts []retriever.Option
	if r.config.TopK > 0 {
		opts = append(opts, retriever.WithTopK(r.config.TopK))
	}

	docs, err := r.config.Retriever.Retrieve(ctx, state.Query, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}

	state.Docs = docs
	return state, nil
}

// processPrompt 格式化模板
func (r *RAG) processPrompt(ctx context.Context, state *State) (*State, error) {
	msgs, err := r.config.Template.Format(ctx, map[string]any{
		promptpkg.VarContext: state.ToContext(),
		promptpkg.VarInput:   state.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt failed: %w", err)
	}

	state.Messages = msgs
	return state, nil
}

// processGenerate 调用对话模型生成回答
func (r *RAG) processGenerate(ctx context.Context, state *State) (*State, error) {
	msg, err := r.config.ChatModel.Generate(ctx, state.Messages)
	if err != nil {
		return nil, fmt.Errorf("generate failed: %w", err)
	}

	state.Answer = msg.Content
	return state, nil
}

// ========== 公开方法 ==========

// Invoke 执行 RAG 并返回完整状态
func (r *RAG) Invoke(ctx context.Context, query string, opts ...compose.Option) (*State, error) {
	state, err := r.graph.Invoke(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("rag graph invoke failed: %w", err)
	}
	return state, nil
}

// Query 执行 RAG 并返回回答与上下文
func (r *RAG) Query(ctx context.Context, query string, opts ...compose.Option) (*Answer, error) {
	state, err := r.Invoke(ctx, query, opts...)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Input:   state.Query,
		Answer:  state.Answer,
		Context: types.FromSchema(state.Docs),
	}, nil
}
