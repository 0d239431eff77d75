package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// Policy 上游调用策略
type Policy struct {
	Timeout         time.Duration // 单次调用超时，0 表示不限制
	MaxRetries      int           // 失败后的额外尝试次数
	InitialInterval time.Duration // 首次重试间隔，默认 200ms
}

func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxInterval = 2 * time.Second
	return b
}

// Do 在策略约束下执行上游调用
// 最终失败的错误包装为 types.ErrUpstream
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		callCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		res, err := op(callCtx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		log.Warn().Err(err).Str("call", name).Int("attempt", attempt).Msg("transient upstream error")
		return res, err
	}

	maxTries := uint(1)
	if p.MaxRetries > 0 {
		maxTries += uint(p.MaxRetries)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w: %w", name, types.ErrUpstream, err)
	}
	return res, nil
}

// IsTransient 判断错误是否值得重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection refused", "connection reset", "eof", "429", "502", "503", "504", "too many requests", "service unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ========== 组件包装 ==========

type retryChatModel struct {
	inner  model.BaseChatModel
	policy Policy
}

// WrapChatModel 为对话模型加上超时与重试
func WrapChatModel(cm model.BaseChatModel, p Policy) model.BaseChatModel {
	return &retryChatModel{inner: cm, policy: p}
}

func (m *retryChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return Do(ctx, m.policy, "chat model generate", func(ctx context.Context) (*schema.Message, error) {
		return m.inner.Generate(ctx, input, opts...)
	})
}

// Stream 只对建立流的过程重试，流本身的生命周期不受超时约束
func (m *retryChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	noTimeout := m.policy
	noTimeout.Timeout = 0
	return Do(ctx, noTimeout, "chat model stream", func(ctx context.Context) (*schema.StreamReader[*schema.Message], error) {
		return m.inner.Stream(ctx, input, opts...)
	})
}

type retryEmbedder struct {
	inner  embedding.Embedder
	policy Policy
}

// WrapEmbedder 为 Embedding 器加上超时与重试
func WrapEmbedder(emb embedding.Embedder, p Policy) embedding.Embedder {
	return &retryEmbedder{inner: emb, policy: p}
}

func (e *retryEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return Do(ctx, e.policy, "embed strings", func(ctx context.Context) ([][]float64, error) {
		return e.inner.EmbedStrings(ctx, texts, opts...)
	})
}
