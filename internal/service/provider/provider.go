// Package provider 创建 Eino 对话模型与 Embedding 组件
// 所有组件都包裹了超时与重试
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiemb "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Factory 按模型名创建组件
type Factory struct {
	cfg    *config.Config
	policy Policy
}

// NewFactory 创建组件工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
		policy: Policy{
			Timeout:    time.Duration(cfg.AI.Timeout) * time.Second,
			MaxRetries: cfg.AI.MaxRetries,
		},
	}
}

// NewChatModel 创建对话模型
// ollama 通过其 OpenAI 兼容接口 (/v1) 访问
func (f *Factory) NewChatModel(ctx context.Context, modelName string) (model.BaseChatModel, error) {
	aiCfg := f.cfg.AI

	var apiKey, baseURL string

	switch aiCfg.Provider {
	case "ollama", "":
		apiKey = "ollama"
		baseURL = strings.TrimSuffix(f.cfg.Ollama.BaseURL, "/") + "/v1"
	case "openai", "deepseek":
		apiKey = aiCfg.APIKey
		baseURL = aiCfg.BaseURL
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	temperature := aiCfg.Temperature

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return WrapChatModel(cm, f.policy), nil
}

// NewEmbedder 创建 Embedding 器
// 未单独配置 embedding.model 时使用 Profile 自身的模型
func (f *Factory) NewEmbedder(ctx context.Context, modelName string) (embedding.Embedder, error) {
	embCfg := f.cfg.Embedding

	if embCfg.Model != "" {
		modelName = embCfg.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}

	var (
		emb embedding.Embedder
		err error
	)

	switch embCfg.Provider {
	case "ollama", "":
		baseURL := embCfg.BaseURL
		if baseURL == "" {
			baseURL = f.cfg.Ollama.BaseURL
		}
		emb, err = ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   modelName,
			Timeout: f.policy.Timeout,
		})
	case "openai":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: openai")
		}
		emb, err = openaiemb.NewEmbedder(ctx, &openaiemb.EmbeddingConfig{
			APIKey:  embCfg.APIKey,
			Model:   modelName,
			BaseURL: embCfg.BaseURL,
		})
	case "alibaba", "qwen", "dashscope":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: dashscope")
		}
		dsCfg := &dashscope.EmbeddingConfig{
			APIKey:  embCfg.APIKey,
			Model:   modelName,
			Timeout: f.policy.Timeout,
		}
		if embCfg.Dimensions > 0 {
			dsCfg.Dimensions = &embCfg.Dimensions
		}
		emb, err = dashscope.NewEmbedder(ctx, dsCfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return WrapEmbedder(emb, f.policy), nil
}
