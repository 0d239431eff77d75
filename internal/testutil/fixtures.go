// Package testutil 提供测试辅助工具
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EmbedDims Embedder 输出维度
const EmbedDims = 64

// Embedder 词袋哈希向量，相同词汇的文本相似度更高
type Embedder struct {
	Err      error
	calls    atomic.Int64
	failNext atomic.Int64
}

// Calls 调用次数
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// FailNext 接下来 n 次调用返回 ErrUnavailable
func (e *Embedder) FailNext(n int) { e.failNext.Store(int64(n)) }

func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.failNext.Add(-1) >= 0 {
		return nil, ErrUnavailable
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = bagOfWords(text)
	}
	return out, nil
}

func bagOfWords(text string) []float64 {
	v := make([]float64, EmbedDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%EmbedDims]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}

// ChatModel 记录请求并返回固定回答
type ChatModel struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls [][]*schema.Message
}

// Calls 调用次数
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastInput 最近一次请求的消息
func (m *ChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return schema.AssistantMessage(m.Reply, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// ErrUnavailable 模拟上游不可用
var ErrUnavailable = errors.New("503 service unavailable")

// Factory 返回共享的 fake 组件
type Factory struct {
	Chat     *ChatModel
	Embedder *Embedder
	ChatErr  error
}

// NewFactory 创建 fake 组件工厂
func NewFactory(reply string) *Factory {
	return &Factory{
		Chat:     &ChatModel{Reply: reply},
		Embedder: &Embedder{},
	}
}

func (f *Factory) NewChatModel(ctx context.Context, modelName string) (einomodel.BaseChatModel, error) {
	if f.ChatErr != nil {
		return nil, f.ChatErr
	}
	return f.Chat, nil
}

func (f *Factory) NewEmbedder(ctx context.Context, modelName string) (embedding.Embedder, error) {
	return f.Embedder, nil
}

// NewProfile 创建测试用 Profile 记录
func NewProfile(name string, typ model.ProfileType) *model.Profile {
	return &model.Profile{
		Name:      name,
		Model:     "llama3",
		Prompt:    "Be concise",
		Type:      typ,
		Language:  model.LanguageEnglish,
		FilesPath: []string{},
	}
}
