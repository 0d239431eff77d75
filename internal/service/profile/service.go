package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/file"
	"github.com/ashwinyue/rag-profiles/internal/service/knowledge"
	"github.com/ashwinyue/rag-profiles/internal/service/rag"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/rs/zerolog/log"
)

// Upload 一个上传文件
type Upload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// CreateRequest 创建 Profile 请求
type CreateRequest struct {
	Name           string
	Model          string
	Prompt         string
	Description    string
	TextContent    string
	Train          bool
	UseOnlyContext bool
	Language       model.Language
	Files          []Upload
}

// Service Profile 业务服务
type Service struct {
	store *Store
	files file.Storage
}

// NewService 创建 Profile 服务
func NewService(store *Store, files file.Storage) *Service {
	return &Service{store: store, files: files}
}

// SelectType 按请求内容决定 Profile 类型
// 有文件为 RAG-pdf，否则有文本为 RAG-txt，否则为 Base
func SelectType(hasFiles bool, textContent string) model.ProfileType {
	switch {
	case hasFiles:
		return model.ProfileTypeRAGPDF
	case strings.TrimSpace(textContent) != "":
		return model.ProfileTypeRAGTxt
	default:
		return model.ProfileTypeBase
	}
}

// Create 创建 Profile：分配目录，写入语料，训练并加入 Store
// 创建路径总是训练，请求中的 train 只记录日志
// 名称从校验到加入 Store 一直被占用，同名创建不会覆盖彼此的索引
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*model.Profile, error) {
	rec := &model.Profile{
		Name:           strings.TrimSpace(req.Name),
		Model:          strings.TrimSpace(req.Model),
		Prompt:         req.Prompt,
		Description:    req.Description,
		Type:           SelectType(len(req.Files) > 0, req.TextContent),
		UseOnlyContext: req.UseOnlyContext,
		Language:       req.Language,
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidInput, err)
	}
	release, err := s.store.Reserve(rec.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, u := range req.Files {
		if err := knowledge.CheckFileType(file.Extension(u.FileName, u.ContentType)); err != nil {
			return nil, fmt.Errorf("%s: %w", u.FileName, err)
		}
	}
	hasText := strings.TrimSpace(req.TextContent) != ""

	logger := log.With().Str("profile", rec.Name).Logger()
	logger.Info().
		Str("model", rec.Model).
		Str("type", string(rec.Type)).
		Bool("text_content", hasText).
		Int("files", len(req.Files)).
		Bool("train", req.Train).
		Bool("use_only_context", rec.UseOnlyContext).
		Str("language", string(rec.Language)).
		Msg("adding new profile")

	dir, err := s.files.NewDir(ctx, rec.Name)
	if err != nil {
		return nil, err
	}
	rec.ProfileDir = dir

	cleanup := func() {
		if err := s.files.RemoveDir(ctx, dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove profile directory")
		}
	}

	if hasText {
		path, err := s.files.SaveText(ctx, dir, req.TextContent)
		if err != nil {
			cleanup()
			return nil, err
		}
		rec.FilesPath = append(rec.FilesPath, path)
		logger.Info().Str("path", path).Msg("saved text content")
	}

	paths, err := s.saveUploads(ctx, dir, req.Files)
	if err != nil {
		cleanup()
		return nil, err
	}
	rec.FilesPath = append(rec.FilesPath, paths...)

	p, err := New(rec, s.store.deps)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := p.Initialize(ctx, true); err != nil {
		p.Close()
		cleanup()
		return nil, err
	}

	if err := s.store.Add(ctx, p); err != nil {
		if errors.Is(err, ErrProfileExists) {
			p.Close()
			cleanup()
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to save profiles")
	}

	logger.Info().Msg("profile added successfully")
	return p.Record(), nil
}

// UploadFiles 向 RAG-pdf Profile 追加文件并重新训练
// 类型不符或文件类型不支持时记录保持不变；重新训练失败时删除本次文件，恢复原有记录与索引
func (s *Service) UploadFiles(ctx context.Context, name string, uploads []Upload) (*model.Profile, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("no files uploaded: %w", types.ErrInvalidInput)
	}

	p, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	prev := p.Record()
	if prev.Type != model.ProfileTypeRAGPDF {
		return nil, fmt.Errorf("%s: %w", name, ErrNotRAGPDF)
	}
	for _, u := range uploads {
		if err := knowledge.CheckFileType(file.Extension(u.FileName, u.ContentType)); err != nil {
			return nil, fmt.Errorf("%s: %w", u.FileName, err)
		}
	}

	logger := log.With().Str("profile", name).Logger()

	dir := prev.ProfileDir
	if dir == "" {
		if dir, err = s.files.NewDir(ctx, name); err != nil {
			return nil, err
		}
		logger.Warn().Str("dir", dir).Msg("profile directory missing, created a new one")
	}

	paths, err := s.saveUploads(ctx, dir, uploads)
	if err != nil {
		return nil, err
	}

	next := prev.Clone()
	next.ProfileDir = dir
	next.FilesPath = append(next.FilesPath, paths...)

	wasInitialized := p.Initialized()
	if err := p.initialize(ctx, next, true); err != nil {
		s.removeFiles(ctx, paths)
		if wasInitialized && !p.Initialized() {
			s.restore(ctx, p, prev)
		}
		return nil, err
	}

	err = s.store.Update(ctx, name, func(r *model.Profile) error {
		r.ProfileDir = next.ProfileDir
		r.FilesPath = next.FilesPath
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to save profiles")
	}

	logger.Info().Int("files", len(paths)).Msg("profile retrained with new files")
	return p.Record(), nil
}

// restore 旧索引已被重建覆盖时，用原有语料重新训练
func (s *Service) restore(ctx context.Context, p *Profile, prev *model.Profile) {
	logger := log.With().Str("profile", prev.Name).Logger()
	if err := p.initialize(ctx, prev, true); err != nil {
		logger.Error().Err(err).Msg("failed to restore previous index")
		return
	}
	logger.Warn().Msg("restored previous index after failed retrain")
}

// removeFiles 删除本次保存但未被采用的文件
func (s *Service) removeFiles(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := s.files.Remove(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove uploaded file")
		}
	}
}

func (s *Service) saveUploads(ctx context.Context, dir string, uploads []Upload) ([]string, error) {
	paths := make([]string, 0, len(uploads))
	for _, u := range uploads {
		path, err := s.files.Save(ctx, &file.SaveRequest{
			Dir:         dir,
			FileName:    u.FileName,
			ContentType: u.ContentType,
			Reader:      u.Reader,
		})
		if err != nil {
			s.removeFiles(ctx, paths)
			return nil, fmt.Errorf("failed to save %s: %w", u.FileName, err)
		}
		log.Info().Str("file", u.FileName).Str("path", path).Msg("saved uploaded file")
		paths = append(paths, path)
	}
	return paths, nil
}

// Query 查询指定 Profile
func (s *Service) Query(ctx context.Context, name, input string) (*rag.Answer, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("query is required: %w", types.ErrInvalidInput)
	}
	p, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, input)
}

// List 列出所有 Profile 记录
func (s *Service) List() []*model.Profile {
	return s.store.List()
}

// Get 获取 Profile 记录及其初始化状态
func (s *Service) Get(name string) (*model.Profile, bool, error) {
	p, err := s.store.Get(name)
	if err != nil {
		return nil, false, err
	}
	return p.Record(), p.Initialized(), nil
}
