// Package types 定义共享的类型和错误
package types

import (
	"errors"

	"github.com/cloudwego/eino/schema"
)

// 错误类型
var (
	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("not found")
	// ErrInvalidState 状态不允许当前操作（类型不匹配、未初始化等）
	ErrInvalidState = errors.New("invalid state")
	// ErrUpstream 上游服务（模型服务、向量库）调用失败
	ErrUpstream = errors.New("upstream failure")
	// ErrIO 文件读写或持久化失败
	ErrIO = errors.New("io failure")
	// ErrInvalidInput 输入参数不合法
	ErrInvalidInput = errors.New("invalid input")
)

// Kind 错误类别（对外暴露）
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindUpstream     Kind = "upstream_failure"
	KindIO           Kind = "io_failure"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
)

// KindOf 返回错误所属类别
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindBadRequest
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindInternal
	}
}

// Document 检索得到的上下文片段
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FromSchema 将 eino Document 转换为响应格式
func FromSchema(docs []*schema.Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		metadata := make(map[string]interface{})
		for k, v := range doc.MetaData {
			// _score 等内部键不对外暴露
			if len(k) > 0 && k[0] == '_' {
				continue
			}
			metadata[k] = v
		}
		out = append(out, Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    doc.Score(),
			Metadata: metadata,
		})
	}
	return out
}
