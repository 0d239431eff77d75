package vectorstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	es8indexer "github.com/cloudwego/eino-ext/components/indexer/es8"
	es8retriever "github.com/cloudwego/eino-ext/components/retriever/es8"
	"github.com/cloudwego/eino-ext/components/retriever/es8/search_mode"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	estypes "github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/rs/zerolog/log"
)

// ES 文档字段
const (
	fieldContent       = "content"
	fieldContentVector = "content_vector"
	fieldMetadata      = "metadata"
)

// ESBackend 每个 Profile 一个 Elasticsearch 索引：<prefix>_<slug>_<hash>
type ESBackend struct {
	client     *elasticsearch.Client
	prefix     string
	dimensions int
	topK       int
}

// NewESBackend 创建 Elasticsearch 后端
func NewESBackend(cfg config.ElasticConfig, dimensions, topK int) (*ESBackend, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("elasticsearch host not configured")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es client: %w", err)
	}

	return &ESBackend{
		client:     client,
		prefix:     cfg.IndexPrefix,
		dimensions: dimensions,
		topK:       topK,
	}, nil
}

// IndexName 返回 Profile 对应的索引名
func (b *ESBackend) IndexName(name string) string {
	return indexName(b.prefix, name)
}

// maxSlugLen 留出前缀与哈希后缀的空间，ES 索引名上限 255 字节
const maxSlugLen = 200

// indexName <prefix>_<slug>_<hash>
// ES 要求小写且限制字符，slug 会合并不同名称，哈希取自原始名称保证一一对应
func indexName(prefix, name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		if sb.Len() >= maxSlugLen {
			break
		}
	}
	slug := sb.String()

	sum := sha256.Sum256([]byte(name))
	n := slug + "_" + hex.EncodeToString(sum[:6])
	if prefix == "" {
		return strings.TrimLeft(n, "-_+.")
	}
	return strings.ToLower(prefix) + "_" + n
}

// Exists 索引是否存在
func (b *ESBackend) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}

	res, err := b.client.Indices.Exists([]string{b.IndexName(name)}, b.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w: %w", types.ErrUpstream, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check index existence: %s: %w", res.String(), types.ErrUpstream)
	}
}

// Reset 删除并重建索引
func (b *ESBackend) Reset(ctx context.Context, name string, emb embedding.Embedder) (Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	index := b.IndexName(name)

	res, err := b.client.Indices.Delete([]string{index}, b.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to delete index: %w: %w", types.ErrUpstream, err)
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("failed to delete index: %s: %w", res.String(), types.ErrUpstream)
	}

	dims := b.dimensions
	if dims <= 0 {
		// 未配置维度时用一次探测确定
		sample, err := embedOne(ctx, emb, "dimension check")
		if err != nil {
			return nil, err
		}
		dims = len(sample)
	}

	if err := ensureESIndex(ctx, b.client, index, dims); err != nil {
		return nil, err
	}

	return b.newStore(ctx, index, emb)
}

// Open 打开已有索引
func (b *ESBackend) Open(ctx context.Context, name string, emb embedding.Embedder) (Store, error) {
	ok, err := b.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrIndexNotFound)
	}
	return b.newStore(ctx, b.IndexName(name), emb)
}

func (b *ESBackend) newStore(ctx context.Context, index string, emb embedding.Embedder) (Store, error) {
	idx, err := es8indexer.NewIndexer(ctx, &es8indexer.IndexerConfig{
		Client:    b.client,
		Index:     index,
		BatchSize: 10,
		Embedding: emb,
		DocumentToFields: func(ctx context.Context, doc *schema.Document) (map[string]es8indexer.FieldValue, error) {
			return documentToESFields(doc), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es8 indexer: %w", err)
	}

	ret, err := es8retriever.NewRetriever(ctx, &es8retriever.RetrieverConfig{
		Client:       b.client,
		Index:        index,
		TopK:         b.topK,
		SearchMode:   search_mode.SearchModeDenseVectorSimilarity(search_mode.DenseVectorSimilarityTypeCosineSimilarity, fieldContentVector),
		ResultParser: parseHit,
		Embedding:    emb,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es8 retriever: %w", err)
	}

	return &esStore{indexer: idx, retriever: ret}, nil
}

// esStore 组合 eino-ext 的 es8 Indexer 与 Retriever
type esStore struct {
	indexer   *es8indexer.Indexer
	retriever *es8retriever.Retriever
}

func (s *esStore) GetType() string { return "ES8" }

func (s *esStore) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	return s.indexer.Store(ctx, docs, opts...)
}

func (s *esStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	return s.retriever.Retrieve(ctx, query, opts...)
}

// Close ES 客户端无需显式关闭
func (s *esStore) Close() error { return nil }

// documentToESFields 内容字段向量化，元数据原样存储
func documentToESFields(doc *schema.Document) map[string]es8indexer.FieldValue {
	fields := map[string]es8indexer.FieldValue{
		fieldContent: {
			Value:    doc.Content,
			EmbedKey: fieldContentVector,
		},
	}
	if len(doc.MetaData) > 0 {
		fields[fieldMetadata] = es8indexer.FieldValue{Value: doc.MetaData}
	}
	return fields
}

// parseHit 将检索结果还原为文档
func parseHit(_ context.Context, hit estypes.Hit) (*schema.Document, error) {
	doc := &schema.Document{MetaData: map[string]any{}}
	if hit.Id_ != nil {
		doc.ID = *hit.Id_
	}

	var src struct {
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if len(hit.Source_) > 0 {
		if err := json.Unmarshal(hit.Source_, &src); err != nil {
			return nil, fmt.Errorf("failed to parse hit %s: %w", doc.ID, err)
		}
	}
	doc.Content = src.Content
	for k, v := range src.Metadata {
		doc.MetaData[k] = v
	}

	if hit.Score_ != nil {
		doc = doc.WithScore(float64(*hit.Score_))
	}
	return doc, nil
}

// ensureESIndex 确保 ES 索引存在（如不存在则创建）
func ensureESIndex(ctx context.Context, client *elasticsearch.Client, index string, dimensions int) error {
	res, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w: %w", types.ErrUpstream, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				fieldContent: map[string]any{
					"type": "text",
				},
				fieldContentVector: map[string]any{
					"type":       "dense_vector",
					"dims":       dimensions,
					"index":      true,
					"similarity": "cosine",
				},
				fieldMetadata: map[string]any{
					"type":    "object",
					"enabled": false,
				},
			},
		},
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader(body),
	}
	res, err = req.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w: %w", types.ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index: %s: %w", res.String(), types.ErrUpstream)
	}

	log.Info().Str("index", index).Int("dims", dimensions).Msg("es index created")
	return nil
}
