package handler

import (
	"github.com/gin-gonic/gin"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	version string
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version}
}

// Health 存活检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	Success(c, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}
