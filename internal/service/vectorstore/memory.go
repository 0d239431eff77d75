package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// MemoryBackend 进程内索引，重启后丢失
type MemoryBackend struct {
	mu     sync.Mutex
	topK   int
	stores map[string]*memoryStore
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend(topK int) *MemoryBackend {
	return &MemoryBackend{topK: topK, stores: make(map[string]*memoryStore)}
}

// Exists 索引是否存在
func (b *MemoryBackend) Exists(_ context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.stores[name]
	return ok, nil
}

// Reset 替换为空索引
func (b *MemoryBackend) Reset(_ context.Context, name string, emb embedding.Embedder) (Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &memoryStore{emb: emb, topK: b.topK}
	b.stores[name] = s
	return s, nil
}

// Open 返回已有索引
func (b *MemoryBackend) Open(_ context.Context, name string, emb embedding.Embedder) (Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stores[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrIndexNotFound)
	}
	s.mu.Lock()
	s.emb = emb
	s.mu.Unlock()
	return s, nil
}

type memoryEntry struct {
	doc    *schema.Document
	vector []float64
}

// memoryStore 余弦相似度暴力检索
type memoryStore struct {
	mu      sync.RWMutex
	emb     embedding.Embedder
	topK    int
	entries []memoryEntry
}

func (s *memoryStore) GetType() string { return "Memory" }

// Store 向量化并写入文档
func (s *memoryStore) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	s.mu.RLock()
	emb := s.emb
	s.mu.RUnlock()

	options := indexer.GetCommonOptions(&indexer.Options{Embedding: emb}, opts...)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := embedAll(ctx, options.Embedding, texts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(docs))
	for i, d := range docs {
		s.entries = append(s.entries, memoryEntry{doc: d, vector: vectors[i]})
		ids[i] = d.ID
	}
	return ids, nil
}

// Retrieve 返回最相似的 topK 个文档
func (s *memoryStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	s.mu.RLock()
	emb := s.emb
	s.mu.RUnlock()

	options := retrieveOptions(s.topK, emb, opts)
	vector, err := embedOne(ctx, options.Embedding, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	type scored struct {
		entry memoryEntry
		score float64
	}
	results := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, scored{entry: e, score: cosine(e.vector, vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	topK := *options.TopK
	docs := make([]*schema.Document, 0, min(topK, len(results)))
	for _, r := range results {
		if len(docs) >= topK {
			break
		}
		if options.ScoreThreshold != nil && r.score < *options.ScoreThreshold {
			continue
		}
		metadata := make(map[string]any, len(r.entry.doc.MetaData))
		for k, v := range r.entry.doc.MetaData {
			metadata[k] = v
		}
		doc := &schema.Document{ID: r.entry.doc.ID, Content: r.entry.doc.Content, MetaData: metadata}
		docs = append(docs, doc.WithScore(r.score))
	}
	return docs, nil
}

// Close 无需释放资源
func (s *memoryStore) Close() error { return nil }

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
