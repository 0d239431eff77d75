package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog/log"
)

const (
	duckDBFile = "index.duckdb"
	// indexesDir 索引目录与 Store 文件等其他产物隔离
	indexesDir = "indexes"
)

const createChunksSQL = `CREATE TABLE IF NOT EXISTS chunks (
	id VARCHAR PRIMARY KEY,
	content VARCHAR NOT NULL,
	metadata VARCHAR,
	embedding DOUBLE[] NOT NULL
)`

// DuckDBBackend 每个 Profile 一个 DuckDB 文件：<root>/indexes/<name>/index.duckdb
type DuckDBBackend struct {
	root string
	topK int
}

// NewDuckDBBackend 创建 DuckDB 后端
func NewDuckDBBackend(root string, topK int) *DuckDBBackend {
	return &DuckDBBackend{root: root, topK: topK}
}

func (b *DuckDBBackend) dir(name string) string {
	return filepath.Join(b.root, indexesDir, name)
}

// Exists 索引文件是否存在
func (b *DuckDBBackend) Exists(_ context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(b.dir(name), duckDBFile))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat index: %w: %w", types.ErrIO, err)
}

// Reset 删除索引目录后重新建表
func (b *DuckDBBackend) Reset(ctx context.Context, name string, emb embedding.Embedder) (Store, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	dir := b.dir(name)
	if err := checkIndexDir(dir); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove index dir: %w: %w", types.ErrIO, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w: %w", types.ErrIO, err)
	}

	s, err := b.open(ctx, name, emb)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, createChunksSQL); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create chunks table: %w: %w", types.ErrIO, err)
	}

	log.Debug().Str("profile", name).Str("dir", dir).Msg("duckdb index reset")
	return s, nil
}

// checkIndexDir 只允许删除不存在、为空或含有索引文件的目录
func checkIndexDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat index dir: %w: %w", types.ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("index path %s is not a directory: %w", dir, types.ErrInvalidState)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read index dir: %w: %w", types.ErrIO, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, duckDBFile)); err != nil {
		return fmt.Errorf("index dir %s does not hold an index: %w", dir, types.ErrInvalidState)
	}
	return nil
}

// Open 打开已有索引
func (b *DuckDBBackend) Open(ctx context.Context, name string, emb embedding.Embedder) (Store, error) {
	ok, err := b.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrIndexNotFound)
	}
	s, err := b.open(ctx, name, emb)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *DuckDBBackend) open(ctx context.Context, name string, emb embedding.Embedder) (*duckDBStore, error) {
	db, err := sql.Open("duckdb", filepath.Join(b.dir(name), duckDBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w: %w", types.ErrIO, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open duckdb: %w: %w", types.ErrIO, err)
	}
	return &duckDBStore{db: db, emb: emb, topK: b.topK}, nil
}

// duckDBStore 基于 list_cosine_similarity 的暴力检索
type duckDBStore struct {
	db   *sql.DB
	emb  embedding.Embedder
	topK int
}

func (s *duckDBStore) GetType() string { return "DuckDB" }

// Store 向量化并写入文档
func (s *duckDBStore) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	options := indexer.GetCommonOptions(&indexer.Options{Embedding: s.emb}, opts...)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := embedAll(ctx, options.Embedding, texts)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w: %w", types.ErrIO, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks (id, content, metadata, embedding) VALUES (?, ?, ?, CAST(? AS DOUBLE[]))`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w: %w", types.ErrIO, err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.MetaData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(meta), vectorLiteral(vectors[i])); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %s: %w: %w", d.ID, types.ErrIO, err)
		}
		ids = append(ids, d.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w: %w", types.ErrIO, err)
	}
	return ids, nil
}

// Retrieve 返回与查询最相似的 topK 个文档
func (s *duckDBStore) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retrieveOptions(s.topK, s.emb, opts)

	vector, err := embedOne(ctx, options.Embedding, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, list_cosine_similarity(embedding, CAST(? AS DOUBLE[])) AS score
FROM chunks
ORDER BY score DESC
LIMIT ?`, vectorLiteral(vector), *options.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w: %w", types.ErrIO, err)
	}
	defer rows.Close()

	var docs []*schema.Document
	for rows.Next() {
		var (
			id, content string
			meta        sql.NullString
			score       sql.NullFloat64
		)
		if err := rows.Scan(&id, &content, &meta, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w: %w", types.ErrIO, err)
		}
		if options.ScoreThreshold != nil && score.Float64 < *options.ScoreThreshold {
			continue
		}

		doc := &schema.Document{ID: id, Content: content, MetaData: map[string]any{}}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &doc.MetaData); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("invalid chunk metadata")
			}
		}
		docs = append(docs, doc.WithScore(score.Float64))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w: %w", types.ErrIO, err)
	}

	return docs, nil
}

// Close 关闭连接
func (s *duckDBStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// vectorLiteral 转为 DuckDB 列表字面量，如 [0.1,0.2]
func vectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
