// 测试辅助函数
package rag

import (
	"context"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// newDoc 创建测试文档
func newDoc(content string, score float64) *schema.Document {
	d := &schema.Document{
		ID:       content,
		Content:  content,
		MetaData: map[string]any{"source": "test"},
	}
	return d.WithScore(score)
}

// ========== Mock Retriever ==========

type mockRetriever struct {
	documents []*schema.Document
	err       error
	lastQuery string
	lastTopK  int
}

func newMockRetriever(docs []*schema.Document, err error) *mockRetriever {
	return &mockRetriever{documents: docs, err: err}
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	m.lastQuery = query
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)
	if options.TopK != nil {
		m.lastTopK = *options.TopK
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.documents, nil
}
