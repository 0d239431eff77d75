// Package prompt 组装 Profile 的问答提示词模板
package prompt

import (
	"context"
	"fmt"

	"github.com/ashwinyue/rag-profiles/internal/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 内置前导指令
const (
	QAEnglishOnlyContext = `
    Answer any user questions based solely on the context below, answer only in English:
    `

	QAEnglish = `
    Answer any user questions based on the context but also consider your knowledge, answer only in English:
    `

	QAArabicOnlyContext = `
    أجب على أي سؤال استخدم فقط السياق أدناه, الجواب باللغة العربية فقط:
    `

	QAArabic = `
    أجب على أي سؤال استخدم السياق ولكن اعتبر معرفتك أيضًا, الجواب باللغة العربية فقط:
    `
)

// 模板变量
const (
	VarContext = "context"
	VarInput   = "input"

	// ContextPlaceholder 系统消息中的上下文占位
	ContextPlaceholder = "<context> {context} </context>"
)

// Preamble 根据语言和是否仅使用上下文选择前导指令
// 未知语言按英文处理
func Preamble(language model.Language, useOnlyContext bool) string {
	if language == model.LanguageArabic {
		if useOnlyContext {
			return QAArabicOnlyContext
		}
		return QAArabic
	}
	if useOnlyContext {
		return QAEnglishOnlyContext
	}
	return QAEnglish
}

// SystemTemplate 返回系统消息模板文本
func SystemTemplate(language model.Language, useOnlyContext bool, custom string) string {
	return Preamble(language, useOnlyContext) + "\n" + custom + "\n" + ContextPlaceholder
}

// Build 构建问答模板
// 用户提示词中的花括号会导致格式化失败，此时返回 nil 模板和错误
func Build(ctx context.Context, language model.Language, useOnlyContext bool, custom string) (prompt.ChatTemplate, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(SystemTemplate(language, useOnlyContext, custom)),
		schema.UserMessage("{input}"),
	)

	// 试格式化一次，尽早暴露模板错误
	if _, err := tpl.Format(ctx, map[string]any{VarContext: "", VarInput: ""}); err != nil {
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}

	return tpl, nil
}
