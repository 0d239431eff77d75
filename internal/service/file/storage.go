package file

import (
	"context"
	"io"
)

// Storage 语料文件存储接口
type Storage interface {
	// NewDir 为一次 Profile 创建分配独立目录
	NewDir(ctx context.Context, profileName string) (string, error)
	// Save 保存上传文件，返回文件路径
	Save(ctx context.Context, req *SaveRequest) (string, error)
	// SaveText 将文本内容保存为 .txt 文件，返回文件路径
	SaveText(ctx context.Context, dir, text string) (string, error)
	// Remove 删除单个已保存文件
	Remove(ctx context.Context, path string) error
	// RemoveDir 删除目录及其内容
	RemoveDir(ctx context.Context, dir string) error
}

// SaveRequest 保存文件请求
type SaveRequest struct {
	Dir         string
	FileName    string
	ContentType string
	Reader      io.Reader
}
