// Package log 提供 simdht 统一日志接口
//
// 基于 Go 标准库 log/slog 封装。每个组件声明一个包级 logger：
//
//	var logger = log.Logger("routing/kademlia")
//
// 返回的 LazyLogger 每次调用都读取当前的默认 handler，
// 因此 CLI 在启动后调整级别或输出目标，对所有组件立即生效。
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// 日志级别常量
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// current 当前默认 logger
var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

// Default 返回当前默认 logger
func Default() *slog.Logger {
	return current.Load()
}

// SetDefault 替换默认 logger
func SetDefault(l *slog.Logger) {
	if l == nil {
		return
	}
	current.Store(l)
}

// New 创建文本格式 logger
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSON 创建 JSON 格式 logger
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetOutput 将默认 logger 重定向到 w，级别为 level
func SetOutput(w io.Writer, level slog.Level) {
	SetDefault(New(w, level))
}

// SetLevel 以指定级别重建输出到 stderr 的默认 logger
func SetLevel(level slog.Level) {
	SetOutput(os.Stderr, level)
}

// Discard 丢弃所有日志，测试中使用
func Discard() {
	SetOutput(io.Discard, LevelError+4)
}

// ParseLevel 解析 debug / info / warn / error
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 带组件名的懒加载 logger
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) base() *slog.Logger {
	return Default().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) { l.base().Info(msg, args...) }

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) { l.base().Warn(msg, args...) }

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base().DebugContext(ctx, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base().WarnContext(ctx, msg, args...)
}

// With 添加额外属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}

// Enabled 判断级别是否输出，用于跳过昂贵的日志参数构造
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return Default().Enabled(context.Background(), level)
}
