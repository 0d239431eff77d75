// Package handler 提供 HTTP 处理器
package handler

import (
	"context"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service"
	"github.com/ashwinyue/rag-profiles/internal/service/profile"
	"github.com/ashwinyue/rag-profiles/internal/service/rag"
)

// ProfileService Profile 业务接口
type ProfileService interface {
	Create(ctx context.Context, req *profile.CreateRequest) (*model.Profile, error)
	UploadFiles(ctx context.Context, name string, uploads []profile.Upload) (*model.Profile, error)
	Query(ctx context.Context, name, input string) (*rag.Answer, error)
	List() []*model.Profile
	Get(name string) (*model.Profile, bool, error)
}

// ModelLister 模型列表接口
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Handlers 处理器集合
type Handlers struct {
	Profile *ProfileHandler
	Model   *ModelHandler
	System  *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Profile: NewProfileHandler(svc.Profiles),
		Model:   NewModelHandler(svc.Models),
		System:  NewSystemHandler(svc.Config.App.Version),
	}
}
