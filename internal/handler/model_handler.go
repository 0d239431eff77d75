package handler

import (
	"github.com/gin-gonic/gin"
)

// ModelHandler 模型处理器
type ModelHandler struct {
	svc ModelLister
}

// NewModelHandler 创建模型处理器
func NewModelHandler(svc ModelLister) *ModelHandler {
	return &ModelHandler{svc: svc}
}

// ListModels 列出可用模型
// GET /models
func (h *ModelHandler) ListModels(c *gin.Context) {
	models, err := h.svc.ListModels(c.Request.Context())
	if err != nil {
		Error(c, err, "Unable to fetch models")
		return
	}

	Success(c, gin.H{"models": models})
}
