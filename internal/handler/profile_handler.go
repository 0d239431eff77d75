package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashwinyue/rag-profiles/internal/middleware"
	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/ashwinyue/rag-profiles/internal/service/profile"
	"github.com/ashwinyue/rag-profiles/internal/service/types"
	"github.com/gin-gonic/gin"
)

// ProfileHandler Profile 处理器
type ProfileHandler struct {
	svc ProfileService
}

// NewProfileHandler 创建 Profile 处理器
func NewProfileHandler(svc ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// QueryRequest 查询请求，支持表单与 JSON
type QueryRequest struct {
	Query string `form:"query" json:"query" binding:"required"`
}

// ListProfiles 列出所有 Profile
// GET /profiles
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	Success(c, gin.H{"profiles": h.svc.List()})
}

// GetProfile 获取 Profile
// GET /profiles/:name
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	rec, initialized, err := h.svc.Get(c.Param("name"))
	if err != nil {
		Error(c, err, "Unable to get profile")
		return
	}

	Success(c, gin.H{
		"profile":     rec,
		"initialized": initialized,
	})
}

// CreateProfile 创建 Profile
// POST /profiles (multipart: name, model, prompt, description, text_content, train, use_only_context, language, files)
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	form, ok := h.parseForm(c)
	if !ok {
		return
	}

	req := &profile.CreateRequest{
		Name:        c.PostForm("name"),
		Model:       c.PostForm("model"),
		Prompt:      c.PostForm("prompt"),
		Description: c.PostForm("description"),
		TextContent: c.PostForm("text_content"),
		Language:    model.Language(c.DefaultPostForm("language", string(model.LanguageEnglish))),
	}
	for _, field := range []string{"name", "model", "prompt"} {
		if strings.TrimSpace(c.PostForm(field)) == "" {
			BadRequest(c, fmt.Sprintf("%s is required", field))
			return
		}
	}

	var err error
	if req.Train, err = formBool(c, "train"); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.UseOnlyContext, err = formBool(c, "use_only_context"); err != nil {
		BadRequest(c, err.Error())
		return
	}

	uploads, closeAll, err := openUploads(form)
	defer closeAll()
	if err != nil {
		Error(c, err, "Unable to add profile")
		return
	}
	req.Files = uploads

	rec, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("profile", req.Name).Msg("error adding profile")
		Error(c, err, "Unable to add profile")
		return
	}

	Created(c, gin.H{
		"message": fmt.Sprintf("Profile '%s' added successfully", rec.Name),
		"profile": rec,
	})
}

// UploadFiles 向 Profile 追加文件并重新训练
// POST /profiles/:name/files (multipart: files)
func (h *ProfileHandler) UploadFiles(c *gin.Context) {
	name := c.Param("name")

	form, ok := h.parseForm(c)
	if !ok {
		return
	}
	if form == nil || len(form.File["files"]) == 0 {
		BadRequest(c, "files are required")
		return
	}

	uploads, closeAll, err := openUploads(form)
	defer closeAll()
	if err != nil {
		Error(c, err, "Unable to upload files")
		return
	}

	if _, err := h.svc.UploadFiles(c.Request.Context(), name, uploads); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("profile", name).Msg("error uploading files")
		Error(c, err, "Unable to upload files")
		return
	}

	Success(c, gin.H{
		"message": fmt.Sprintf("Files uploaded and profile '%s' updated successfully", name),
	})
}

// QueryProfile 查询 Profile
// POST /profiles/:name/query (form 或 JSON: query)
func (h *ProfileHandler) QueryProfile(c *gin.Context) {
	name := c.Param("name")

	var req QueryRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, "query is required")
		return
	}

	answer, err := h.svc.Query(c.Request.Context(), name, req.Query)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("profile", name).Msg("error querying profile")
		Error(c, err, "Unable to query profile")
		return
	}

	Success(c, gin.H{"response": answer})
}

// parseForm 解析 multipart 表单，非 multipart 请求返回 nil
func (h *ProfileHandler) parseForm(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if err == nil {
		return form, true
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		Fail(c, http.StatusRequestEntityTooLarge, types.KindBadRequest, "request body too large")
		return nil, false
	}
	BadRequest(c, "invalid multipart form")
	return nil, false
}

// openUploads 打开表单中的所有文件，返回的 closeAll 总是可调用
func openUploads(form *multipart.Form) ([]profile.Upload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}

	uploads := make([]profile.Upload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to open upload %s: %w: %w", fh.Filename, types.ErrIO, err)
		}
		files = append(files, f)
		uploads = append(uploads, profile.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		})
	}
	return uploads, closeAll, nil
}

// formBool 解析布尔表单字段，缺省为 false
func formBool(c *gin.Context, key string) (bool, error) {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}
