package handler

import (
	"errors"
	"net/http"

	"github.com/ashwinyue/rag-profiles/internal/service/profile"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/gin-gonic/gin"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code int        `json:"code"`
	Kind types.Kind `json:"kind"`
	Msg  string     `json:"msg"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Fail 错误响应
func Fail(c *gin.Context, status int, kind types.Kind, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Kind: kind, Msg: msg})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, types.KindBadRequest, msg)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, types.KindNotFound, msg)
}

// Error 根据错误类型返回相应的错误响应
// 5xx 只返回 fallback 文案，原始错误记录在 gin 上下文中
func Error(c *gin.Context, err error, fallback string) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	kind := types.KindOf(err)
	switch {
	case errors.Is(err, profile.ErrNotRAGPDF):
		Fail(c, http.StatusBadRequest, kind, "Profile is not of type 'RAG-pdf'")
	case errors.Is(err, profile.ErrNotInitialized):
		Fail(c, http.StatusConflict, kind, "Profile is not initialized")
	case errors.Is(err, profile.ErrProfileExists):
		Fail(c, http.StatusConflict, kind, "Profile already exists")
	case kind == types.KindNotFound:
		Fail(c, http.StatusNotFound, kind, "Profile not found")
	case kind == types.KindBadRequest:
		Fail(c, http.StatusBadRequest, kind, err.Error())
	case kind == types.KindInvalidState:
		Fail(c, http.StatusConflict, kind, fallback)
	default:
		Fail(c, http.StatusInternalServerError, kind, fallback)
	}
}
