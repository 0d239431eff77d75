// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxLoggedLen = 200

type startKey struct{}

// Logger 日志回调处理器
// 实现 callbacks.Handler 接口，记录 Eino 组件的执行事件与耗时
type Logger struct {
	logger zerolog.Logger
}

// NewLogger 创建日志回调处理器
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "eino").Logger()}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	l.event(l.logger.Debug(), info).Str("input", truncate(input)).Msg("start")
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	l.event(l.logger.Debug(), info).
		Dur("elapsed", elapsed(ctx)).
		Str("output", truncate(output)).
		Msg("end")
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.event(l.logger.Error(), info).Err(err).Dur("elapsed", elapsed(ctx)).Msg("error")
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	l.event(l.logger.Debug(), info).Msg("stream start")
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEndWithStreamOutput 流式输出结束时调用
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	l.event(l.logger.Debug(), info).Dur("elapsed", elapsed(ctx)).Msg("stream end")
	return ctx
}

func (l *Logger) event(e *zerolog.Event, info *callbacks.RunInfo) *zerolog.Event {
	if info == nil {
		return e
	}
	return e.Str("name", info.Name).Str("type", info.Type).Str("kind", string(info.Component))
}

func elapsed(ctx context.Context) time.Duration {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}

// truncate 截断日志内容，避免日志过大
func truncate(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	r := []rune(s)
	if len(r) > maxLoggedLen {
		return string(r[:maxLoggedLen]) + "..."
	}
	return s
}

// SetupGlobalCallbacks 设置全局回调
func SetupGlobalCallbacks() {
	callbacks.AppendGlobalHandlers(NewLogger(log.Logger))
	log.Debug().Msg("eino global callbacks registered")
}
