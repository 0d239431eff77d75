// Package ollama 访问模型服务的管理接口
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// modelsCacheKey 模型列表缓存键
const modelsCacheKey = "rag-profiles:models"

// Service 模型服务客户端
type Service struct {
	baseURL string
	client  *http.Client
	cache   redis.Cmdable
	ttl     time.Duration
}

// Option 配置项
type Option func(*Service)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithCache 启用 Redis 缓存模型列表
func WithCache(cache redis.Cmdable, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.ttl = ttl
	}
}

// NewService 创建模型服务客户端
func NewService(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListModels 列出已安装的模型
func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	if models, ok := s.cachedModels(ctx); ok {
		return models, nil
	}

	var result struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := s.getJSON(ctx, "/api/tags", &result); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		models = append(models, name)
	}

	log.Info().Int("count", len(models)).Msg("fetched models")
	s.storeModels(ctx, models)
	return models, nil
}

// Version 返回模型服务版本，用于健康检查
func (s *Service) Version(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}
	if err := s.getJSON(ctx, "/api/version", &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

func (s *Service) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w: %w", path, types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s returned status %d: %w", path, resp.StatusCode, types.ErrUpstream)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w: %w", path, types.ErrUpstream, err)
	}
	return nil
}

// cachedModels 读取缓存，缓存不可用时视为未命中
func (s *Service) cachedModels(ctx context.Context) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, modelsCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("failed to read models cache")
		}
		return nil, false
	}

	var models []string
	if err := json.Unmarshal([]byte(data), &models); err != nil {
		log.Warn().Err(err).Msg("invalid models cache entry")
		return nil, false
	}
	return models, true
}

func (s *Service) storeModels(ctx context.Context, models []string) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(models)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, modelsCacheKey, data, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to write models cache")
	}
}
