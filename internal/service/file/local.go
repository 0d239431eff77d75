// Package file 管理 Profile 语料文件的本地存储
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/google/uuid"
)

// LocalStorage 本地文件存储
// 目录结构：{basePath}/{name}_{uuid}/{uuid}.{ext}
type LocalStorage struct {
	basePath string
}

// NewLocalStorage 创建本地存储服务
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w: %w", types.ErrIO, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// NewDir 创建 {basePath}/{name}_{uuid}
func (s *LocalStorage) NewDir(_ context.Context, profileName string) (string, error) {
	dir := filepath.Join(s.basePath, fmt.Sprintf("%s_%s", profileName, uuid.New().String()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w: %w", types.ErrIO, err)
	}
	return dir, nil
}

// Save 保存文件，文件名替换为 uuid，保留扩展名
func (s *LocalStorage) Save(_ context.Context, req *SaveRequest) (string, error) {
	if req.Dir == "" {
		return "", fmt.Errorf("target directory is required: %w", types.ErrInvalidState)
	}

	ext := Extension(req.FileName, req.ContentType)
	fullPath := filepath.Join(req.Dir, uuid.New().String()+ext)

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w: %w", types.ErrIO, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w: %w", types.ErrIO, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, req.Reader); err != nil {
		return "", fmt.Errorf("failed to write file: %w: %w", types.ErrIO, err)
	}

	return fullPath, nil
}

// SaveText 保存文本内容
func (s *LocalStorage) SaveText(ctx context.Context, dir, text string) (string, error) {
	return s.Save(ctx, &SaveRequest{
		Dir:         dir,
		FileName:    "content.txt",
		ContentType: "text/plain",
		Reader:      strings.NewReader(text),
	})
}

// RemoveDir 删除目录，只允许删除 basePath 下的目录
func (s *LocalStorage) RemoveDir(_ context.Context, dir string) error {
	if err := s.checkInside(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory: %w: %w", types.ErrIO, err)
	}
	return nil
}

// Remove 删除单个文件，文件不存在不视为错误
func (s *LocalStorage) Remove(_ context.Context, path string) error {
	if err := s.checkInside(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w: %w", types.ErrIO, err)
	}
	return nil
}

func (s *LocalStorage) checkInside(path string) error {
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside %s: %w", path, s.basePath, types.ErrInvalidInput)
	}
	return nil
}

// Extension 保存时使用的扩展名：优先取文件名，否则按内容类型推断
func Extension(fileName, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		return ext
	}
	return extensionByContentType(contentType)
}

// extensionByContentType 根据内容类型返回扩展名
func extensionByContentType(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	case "text/html":
		return ".html"
	default:
		return ".bin"
	}
}
