// Package knowledge 提供 DocumentProcessor 单元测试
package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
)

var defaultBounds = config.IngestConfig{ChunkMin: 1000, ChunkMax: 1000, OverlapMin: 100, OverlapMax: 100}

// ========== mock 组件 ==========

type memIndexer struct {
	docs []*schema.Document
	err  error
}

func (m *memIndexer) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		m.docs = append(m.docs, d)
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ========== textParser 测试 ==========

func TestTextParser_Parse(t *testing.T) {
	p := &textParser{}

	tests := []struct {
		name        string
		content     string
		wantDocs    int
		wantContent string
	}{
		{name: "simple text", content: "Hello, world!", wantDocs: 1, wantContent: "Hello, world!"},
		{name: "multiline text", content: "Line 1\nLine 2\nLine 3", wantDocs: 1, wantContent: "Line 1\nLine 2\nLine 3"},
		{name: "empty content", content: "", wantDocs: 0},
		{name: "unicode content", content: "مرحبا 世界 🌍", wantDocs: 1, wantContent: "مرحبا 世界 🌍"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := p.Parse(context.Background(), strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if len(docs) != tt.wantDocs {
				t.Fatalf("Parse() returned %d docs, want %d", len(docs), tt.wantDocs)
			}
			if tt.wantDocs > 0 && docs[0].Content != tt.wantContent {
				t.Errorf("Parse()[0].Content = %q, want %q", docs[0].Content, tt.wantContent)
			}
		})
	}
}

func TestTextParser_ParserInterface(t *testing.T) {
	var _ parser.Parser = &textParser{}
}

// ========== ChunkSizes 测试 ==========

func TestChunkSizes(t *testing.T) {
	wide := config.IngestConfig{ChunkMin: 200, ChunkMax: 2000, OverlapMin: 20, OverlapMax: 200}

	docsOfLen := func(lengths ...int) []*schema.Document {
		out := make([]*schema.Document, len(lengths))
		for i, n := range lengths {
			out[i] = &schema.Document{Content: strings.Repeat("a", n)}
		}
		return out
	}

	tests := []struct {
		name        string
		docs        []*schema.Document
		bounds      config.IngestConfig
		wantChunk   int
		wantOverlap int
	}{
		{name: "default bounds no docs", docs: nil, bounds: defaultBounds, wantChunk: 1000, wantOverlap: 100},
		{name: "default bounds short docs", docs: docsOfLen(10, 20), bounds: defaultBounds, wantChunk: 1000, wantOverlap: 100},
		{name: "default bounds long docs", docs: docsOfLen(5000, 7000), bounds: defaultBounds, wantChunk: 1000, wantOverlap: 100},
		{name: "wide bounds no docs", docs: nil, bounds: wide, wantChunk: 800, wantOverlap: 80},
		{name: "wide bounds mean 1500", docs: docsOfLen(1000, 2000), bounds: wide, wantChunk: 1200, wantOverlap: 120},
		{name: "wide bounds clamp low", docs: docsOfLen(50), bounds: wide, wantChunk: 200, wantOverlap: 20},
		{name: "wide bounds clamp high", docs: docsOfLen(10000), bounds: wide, wantChunk: 2000, wantOverlap: 200},
		{name: "rounding", docs: docsOfLen(1001), bounds: wide, wantChunk: 801, wantOverlap: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, overlap := ChunkSizes(tt.docs, tt.bounds)
			if chunk != tt.wantChunk || overlap != tt.wantOverlap {
				t.Errorf("ChunkSizes() = (%d, %d), want (%d, %d)", chunk, overlap, tt.wantChunk, tt.wantOverlap)
			}
		})
	}
}

func TestChunkSizes_CountsRunes(t *testing.T) {
	wide := config.IngestConfig{ChunkMin: 1, ChunkMax: 5000, OverlapMin: 0, OverlapMax: 1000}
	// 1000 个阿拉伯字母占 2000 字节
	docs := []*schema.Document{{Content: strings.Repeat("ب", 1000)}}

	chunk, _ := ChunkSizes(docs, wide)
	if chunk != 800 {
		t.Errorf("ChunkSizes() chunk = %d, want 800", chunk)
	}
}

// ========== Load 测试 ==========

func TestLoad_TextConcatenates(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Paris is the capital ")
	b := writeFile(t, dir, "b.txt", "of France.")

	proc := NewDocumentProcessor(defaultBounds)
	docs, err := proc.Load(context.Background(), model.ProfileTypeRAGTxt, []string{a, b})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Load() returned %d docs, want 1", len(docs))
	}
	if docs[0].Content != "Paris is the capital of France." {
		t.Errorf("Load()[0].Content = %q", docs[0].Content)
	}
}

func TestLoad_FilesByExtension(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "first file")
	md := writeFile(t, dir, "README.MD", "# second file")

	proc := NewDocumentProcessor(defaultBounds)
	docs, err := proc.Load(context.Background(), model.ProfileTypeRAGPDF, []string{txt, md})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Load() returned %d docs, want 2", len(docs))
	}
	if docs[1].MetaData[MetaSource] != md {
		t.Errorf("MetaData[source] = %v, want %s", docs[1].MetaData[MetaSource], md)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	proc := NewDocumentProcessor(defaultBounds)
	ctx := context.Background()

	bad := writeFile(t, dir, "archive.zip", "PK")
	if _, err := proc.Load(ctx, model.ProfileTypeRAGPDF, []string{bad}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Load() unsupported ext error = %v, want ErrInvalidInput", err)
	}

	missing := filepath.Join(dir, "missing.txt")
	if _, err := proc.Load(ctx, model.ProfileTypeRAGTxt, []string{missing}); !errors.Is(err, types.ErrIO) {
		t.Errorf("Load() missing file error = %v, want ErrIO", err)
	}

	if _, err := proc.Load(ctx, model.ProfileTypeBase, nil); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("Load() base profile error = %v, want ErrInvalidState", err)
	}
}

// ========== Split 测试 ==========

func TestSplit_Metadata(t *testing.T) {
	proc := NewDocumentProcessor(defaultBounds)
	text := strings.Repeat("Sentence number one is here. ", 40)
	docs := []*schema.Document{{Content: text, MetaData: map[string]any{MetaSource: "a.txt"}}}

	chunks, err := proc.Split(context.Background(), "docs", docs, 200, 20)
	if err != nil {
		t.Fatalf("Split() unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Split() returned %d chunks, want several", len(chunks))
	}

	seen := make(map[string]bool)
	for i, c := range chunks {
		if c.ID == "" || seen[c.ID] {
			t.Errorf("chunk %d has empty or duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true
		if c.MetaData[MetaProfile] != "docs" {
			t.Errorf("chunk %d profile = %v, want docs", i, c.MetaData[MetaProfile])
		}
		if c.MetaData[MetaChunkIndex] != i {
			t.Errorf("chunk %d chunk_index = %v", i, c.MetaData[MetaChunkIndex])
		}
		if c.MetaData[MetaSource] != "a.txt" {
			t.Errorf("chunk %d source = %v, want a.txt", i, c.MetaData[MetaSource])
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	proc := NewDocumentProcessor(defaultBounds)
	chunks, err := proc.Split(context.Background(), "docs", nil, 1000, 100)
	if err != nil {
		t.Fatalf("Split() unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Split() returned %d chunks, want 0", len(chunks))
	}
}

// ========== Process 测试 ==========

func TestProcess_SingleSentence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "content.txt", "Paris is the capital of France.")

	proc := NewDocumentProcessor(defaultBounds)
	idx := &memIndexer{}

	result, err := proc.Process(context.Background(), &ProcessRequest{
		ProfileName: "docs",
		Type:        model.ProfileTypeRAGTxt,
		FilePaths:   []string{path},
	}, idx)
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if result.Chunks != 1 || len(idx.docs) != 1 {
		t.Fatalf("Process() chunks = %d, stored = %d, want 1", result.Chunks, len(idx.docs))
	}
	if result.ChunkSize != 1000 || result.Overlap != 100 {
		t.Errorf("Process() sizes = (%d, %d), want (1000, 100)", result.ChunkSize, result.Overlap)
	}
	if idx.docs[0].Content != "Paris is the capital of France." {
		t.Errorf("stored content = %q", idx.docs[0].Content)
	}
}

func TestProcess_EmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "")

	proc := NewDocumentProcessor(defaultBounds)
	_, err := proc.Process(context.Background(), &ProcessRequest{
		ProfileName: "docs",
		Type:        model.ProfileTypeRAGTxt,
		FilePaths:   []string{path},
	}, &memIndexer{})
	if !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("Process() error = %v, want ErrInvalidState", err)
	}
}

func TestProcess_IndexerError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "content.txt", "some text")

	proc := NewDocumentProcessor(defaultBounds)
	_, err := proc.Process(context.Background(), &ProcessRequest{
		ProfileName: "docs",
		Type:        model.ProfileTypeRAGTxt,
		FilePaths:   []string{path},
	}, &memIndexer{err: types.ErrUpstream})
	if !errors.Is(err, types.ErrUpstream) {
		t.Errorf("Process() error = %v, want ErrUpstream", err)
	}
}

func TestPrepare_UnsupportedFileLeavesIndexUntouched(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.txt", "Paris is the capital of France.")
	bad := writeFile(t, dir, "b.exe", "MZ")

	proc := NewDocumentProcessor(defaultBounds)
	_, err := proc.Prepare(context.Background(), &ProcessRequest{
		ProfileName: "manuals",
		Type:        model.ProfileTypeRAGPDF,
		FilePaths:   []string{good, bad},
	})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("Prepare() error = %v, want ErrInvalidInput", err)
	}

	prep, err := proc.Prepare(context.Background(), &ProcessRequest{
		ProfileName: "manuals",
		Type:        model.ProfileTypeRAGPDF,
		FilePaths:   []string{good},
	})
	if err != nil {
		t.Fatalf("Prepare() unexpected error: %v", err)
	}
	if len(prep.Chunks) != 1 || prep.Result.Chunks != 1 {
		t.Fatalf("Prepare() chunks = %d, want 1", len(prep.Chunks))
	}

	idx := &memIndexer{}
	result, err := proc.Index(context.Background(), prep, idx)
	if err != nil {
		t.Fatalf("Index() unexpected error: %v", err)
	}
	if len(idx.docs) != 1 || len(result.IDs) != 1 {
		t.Errorf("Index() stored %d docs, ids %d, want 1", len(idx.docs), len(result.IDs))
	}
}

func TestCheckFileType(t *testing.T) {
	tests := []struct {
		ext     string
		wantErr bool
	}{
		{".pdf", false},
		{".PDF", false},
		{".docx", false},
		{".htm", false},
		{".md", false},
		{".txt", false},
		{".exe", true},
		{".bin", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			err := CheckFileType(tt.ext)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckFileType(%q) error = %v, wantErr %v", tt.ext, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("CheckFileType(%q) error = %v, want ErrInvalidInput", tt.ext, err)
			}
		})
	}
}
