// Package model 提供 Profile 相关的数据模型
package model

import (
	"fmt"
	"strings"
)

// ProfileType Profile 类型
type ProfileType string

const (
	ProfileTypeBase   ProfileType = "Base"    // 纯模型，无语料
	ProfileTypeRAGPDF ProfileType = "RAG-pdf" // 基于上传文件的 RAG
	ProfileTypeRAGTxt ProfileType = "RAG-txt" // 基于文本内容的 RAG
)

// IsRAG 是否为 RAG 类型
func (t ProfileType) IsRAG() bool {
	return t == ProfileTypeRAGPDF || t == ProfileTypeRAGTxt
}

// Valid 是否为已知类型
func (t ProfileType) Valid() bool {
	return t == ProfileTypeBase || t.IsRAG()
}

// Language 回答语言
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// Profile 持久化的 Profile 记录
// 字段名即 profiles.json 的格式
type Profile struct {
	Name           string      `json:"name"`
	Model          string      `json:"model"`
	Prompt         string      `json:"prompt"`
	Description    string      `json:"description"`
	FilePath       *string     `json:"file_path"`
	FilesPath      []string    `json:"files_path"`
	Type           ProfileType `json:"type"`
	UseOnlyContext bool        `json:"use_only_context"`
	Language       Language    `json:"language"`
	ProfileDir     string      `json:"profile_dir,omitempty"`
}

// Normalize 填充默认值
func (p *Profile) Normalize() {
	if p.Type == "" {
		p.Type = ProfileTypeBase
	}
	if p.Language == "" {
		p.Language = LanguageEnglish
	}
	if p.FilesPath == nil {
		p.FilesPath = []string{}
	}
}

// Validate 校验字段（不做任何 I/O）
func (p *Profile) Validate() error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unsupported profile type: %s", p.Type)
	}
	return nil
}

// ValidateName 校验 Profile 名称，名称会作为目录名使用
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid profile name: %q", name)
	}
	return nil
}

// Clone 深拷贝
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.FilesPath = append([]string(nil), p.FilesPath...)
	if p.FilePath != nil {
		v := *p.FilePath
		cp.FilePath = &v
	}
	return &cp
}

// String 返回简要描述
func (p *Profile) String() string {
	return fmt.Sprintf("Profile: %s - %s - %s", p.Name, p.Description, p.Type)
}
