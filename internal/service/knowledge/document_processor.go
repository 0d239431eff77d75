// Package knowledge 负责 Profile 语料的解析、分块与入库
// 直接使用 eino/eino-ext 组件，避免冗余封装
package knowledge

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashwinyue/rag-profiles/internal/config"
	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/html"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// 没有可解析内容时使用的平均长度
const defaultUnitLength = 1000

// 元数据键
const (
	MetaProfile    = "profile"
	MetaSource     = "source"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
)

// 分隔符优先级：段落 → 行 → 句子 → 单词 → 字符
var separators = []string{"\n\n", "\n", ". ", "。", "? ", "？", "! ", "！", " ", ""}

// DocumentProcessor 文档处理服务
type DocumentProcessor struct {
	bounds config.IngestConfig
}

// NewDocumentProcessor 创建文档处理器
func NewDocumentProcessor(bounds config.IngestConfig) *DocumentProcessor {
	return &DocumentProcessor{bounds: bounds}
}

// ProcessRequest 处理请求
type ProcessRequest struct {
	ProfileName string            `json:"profile_name"`
	Type        model.ProfileType `json:"type"`
	FilePaths   []string          `json:"file_paths"`
}

// ProcessResult 处理结果
type ProcessResult struct {
	ProfileName string        `json:"profile_name"`
	ParsedDocs  int           `json:"parsed_docs"`
	Chunks      int           `json:"chunks"`
	ChunkSize   int           `json:"chunk_size"`
	Overlap     int           `json:"overlap"`
	IDs         []string      `json:"ids"`
	Duration    time.Duration `json:"duration"`
}

// Prepared 已解析分块、尚未写入索引的语料
type Prepared struct {
	Result *ProcessResult
	Chunks []*schema.Document
	start  time.Time
}

// Prepare 解析并分块，不接触索引
// 语料无法解析或为空时返回错误，调用方可以保留旧索引
func (p *DocumentProcessor) Prepare(ctx context.Context, req *ProcessRequest) (*Prepared, error) {
	prep := &Prepared{
		Result: &ProcessResult{ProfileName: req.ProfileName},
		start:  time.Now(),
	}
	result := prep.Result

	parsedDocs, err := p.Load(ctx, req.Type, req.FilePaths)
	if err != nil {
		return prep, fmt.Errorf("failed to parse documents: %w", err)
	}
	result.ParsedDocs = len(parsedDocs)

	result.ChunkSize, result.Overlap = ChunkSizes(parsedDocs, p.bounds)

	chunks, err := p.Split(ctx, req.ProfileName, parsedDocs, result.ChunkSize, result.Overlap)
	if err != nil {
		return prep, fmt.Errorf("failed to split documents: %w", err)
	}
	result.Chunks = len(chunks)
	if result.Chunks == 0 {
		return prep, fmt.Errorf("no content to index for profile %s: %w", req.ProfileName, types.ErrInvalidState)
	}

	prep.Chunks = chunks
	return prep, nil
}

// Index 将分块写入索引
func (p *DocumentProcessor) Index(ctx context.Context, prep *Prepared, idx indexer.Indexer) (*ProcessResult, error) {
	result := prep.Result

	ids, err := idx.Store(ctx, prep.Chunks)
	if err != nil {
		return result, fmt.Errorf("failed to store chunks: %w", err)
	}
	result.IDs = ids
	result.Duration = time.Since(prep.start)

	log.Info().
		Str("profile", result.ProfileName).
		Int("parsed_docs", result.ParsedDocs).
		Int("chunks", result.Chunks).
		Int("chunk_size", result.ChunkSize).
		Int("overlap", result.Overlap).
		Dur("duration", result.Duration).
		Msg("corpus indexed")

	return result, nil
}

// Process 解析、分块并写入索引
func (p *DocumentProcessor) Process(ctx context.Context, req *ProcessRequest, idx indexer.Indexer) (*ProcessResult, error) {
	prep, err := p.Prepare(ctx, req)
	if err != nil {
		return prep.Result, err
	}
	return p.Index(ctx, prep, idx)
}

// Load 按 Profile 类型读取语料
// RAG-pdf 逐个文件解析（PDF 按页拆分）；RAG-txt 将所有文本文件拼接为一个文档
func (p *DocumentProcessor) Load(ctx context.Context, profileType model.ProfileType, paths []string) ([]*schema.Document, error) {
	switch profileType {
	case model.ProfileTypeRAGPDF:
		var docs []*schema.Document
		for _, path := range paths {
			parsed, err := p.parseFile(ctx, path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, parsed...)
		}
		return docs, nil
	case model.ProfileTypeRAGTxt:
		return p.loadText(paths)
	default:
		return nil, fmt.Errorf("training not supported for profile type %s: %w", profileType, types.ErrInvalidState)
	}
}

// parseFile 解析单个文件
func (p *DocumentProcessor) parseFile(ctx context.Context, path string) ([]*schema.Document, error) {
	fileParser, err := newParser(ctx, path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w: %w", path, types.ErrIO, err)
	}
	defer file.Close()

	docs, err := fileParser.Parse(ctx, file, einoparser.WithURI(path))
	if err != nil {
		return nil, fmt.Errorf("parser failed for %s: %w", path, err)
	}

	// 添加元数据
	out := docs[:0]
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if d.MetaData == nil {
			d.MetaData = make(map[string]any)
		}
		d.MetaData[MetaSource] = path
		d.MetaData[MetaPage] = i
		out = append(out, d)
	}

	return out, nil
}

// loadText 读取并拼接文本文件
func (p *DocumentProcessor) loadText(paths []string) ([]*schema.Document, error) {
	var sb strings.Builder
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w: %w", path, types.ErrIO, err)
		}
		sb.Write(content)
	}

	if sb.Len() == 0 {
		return []*schema.Document{}, nil
	}

	return []*schema.Document{
		{
			Content:  sb.String(),
			MetaData: map[string]any{MetaSource: "text_content"},
		},
	}, nil
}

// supportedExts 有解析器的扩展名
var supportedExts = map[string]struct{}{
	".pdf": {}, ".docx": {}, ".html": {}, ".htm": {}, ".txt": {}, ".md": {},
}

// CheckFileType 校验扩展名是否可以解析
func CheckFileType(ext string) error {
	ext = strings.ToLower(ext)
	if _, ok := supportedExts[ext]; !ok {
		return fmt.Errorf("unsupported file type %q: %w", ext, types.ErrInvalidInput)
	}
	return nil
}

// newParser 按扩展名创建解析器
func newParser(ctx context.Context, filePath string) (einoparser.Parser, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if err := CheckFileType(ext); err != nil {
		return nil, err
	}

	switch ext {
	case ".pdf":
		return pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	case ".docx":
		return docx.NewDocxParser(ctx, &docx.Config{
			ToSections:      false,
			IncludeComments: false,
			IncludeHeaders:  true,
			IncludeFooters:  false,
			IncludeTables:   true,
		})
	case ".html", ".htm":
		bodySelector := "body"
		return html.NewParser(ctx, &html.Config{
			Selector: &bodySelector,
		})
	case ".txt", ".md":
		return &textParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q: %w", ext, types.ErrInvalidInput)
	}
}

// textParser 纯文本解析器
type textParser struct{}

func (p *textParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	text := string(content)
	if text == "" {
		return []*schema.Document{}, nil
	}

	return []*schema.Document{
		{
			Content:  text,
			MetaData: make(map[string]any),
		},
	}, nil
}

// ChunkSizes 根据平均文档长度计算分块大小与重叠
// chunk = clamp(round(0.8*L), ChunkMin, ChunkMax)，overlap = clamp(round(0.1*chunk), OverlapMin, OverlapMax)
func ChunkSizes(docs []*schema.Document, bounds config.IngestConfig) (chunkSize, overlap int) {
	avg := float64(defaultUnitLength)
	if len(docs) > 0 {
		total := 0
		for _, d := range docs {
			total += utf8.RuneCountInString(d.Content)
		}
		avg = float64(total) / float64(len(docs))
	}

	chunkSize = clamp(int(math.Round(avg*0.8)), bounds.ChunkMin, bounds.ChunkMax)
	overlap = clamp(int(math.Round(float64(chunkSize)*0.1)), bounds.OverlapMin, bounds.OverlapMax)
	return chunkSize, overlap
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Split 分块并补充元数据
func (p *DocumentProcessor) Split(ctx context.Context, profileName string, docs []*schema.Document, chunkSize, overlap int) ([]*schema.Document, error) {
	if len(docs) == 0 {
		return []*schema.Document{}, nil
	}

	splitter, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: overlap,
		Separators:  separators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}

	splitDocs, err := splitter.Transform(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("splitter failed: %w", err)
	}

	chunks := make([]*schema.Document, 0, len(splitDocs))
	for _, d := range splitDocs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		metadata := make(map[string]any, len(d.MetaData)+2)
		for k, v := range d.MetaData {
			metadata[k] = v
		}
		metadata[MetaProfile] = profileName
		metadata[MetaChunkIndex] = len(chunks)

		chunks = append(chunks, &schema.Document{
			ID:       uuid.New().String(),
			Content:  d.Content,
			MetaData: metadata,
		})
	}

	return chunks, nil
}
