// Package logging 提供基于 slog 的结构化日志，支持 OpenTelemetry 追踪上下文注入与运行时调整级别。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger *Logger
	once          sync.Once
	// level 为全局共享的日志级别，SetLevel 会影响所有由本包创建的 Logger。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string `mapstructure:"service"`
	Module     string `mapstructure:"module"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"`    // 日志文件路径，为空则只输出到 stdout
	Console    bool   `mapstructure:"console"` // 配置了文件时是否同时输出到 stdout
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`

	// Output 覆盖默认的 stdout 输出，主要用于测试。
	Output io.Writer `mapstructure:"-"`
}

// Logger 封装 *slog.Logger，附带服务名与模块名。
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

// TraceHandler 从 context 中提取 trace_id 与 span_id 注入日志记录。
type TraceHandler struct {
	slog.Handler
}

// Handle 实现 slog.Handler。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器在派生 Logger 上依然生效。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 同上。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将字符串转换为 slog.Level，无法识别时返回 Info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 在运行时调整全局日志级别（配置热更新时调用）。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// Level 返回当前日志级别。
func Level() slog.Level {
	return level.Level()
}

// NewFromConfig 创建一个新的 Logger 实例。
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	stdout := cfg.Output
	if stdout == nil {
		stdout = os.Stdout
	}

	var handler slog.Handler
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		handler = slog.NewJSONHandler(fileWriter, opts)
		if cfg.Console {
			handler = fanout{handler, slog.NewJSONHandler(stdout, opts)}
		}
	} else {
		handler = slog.NewJSONHandler(stdout, opts)
	}

	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// NewLogger 使用简单参数创建 Logger。
func NewLogger(service, module string, lvl ...string) *Logger {
	l := "info"
	if len(lvl) > 0 {
		l = lvl[0]
	}
	return NewFromConfig(Config{Service: service, Module: module, Level: l})
}

// InitLogger 初始化全局默认日志记录器，只生效一次。
func InitLogger(cfg Config) {
	once.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
}

// Default 返回默认日志记录器实例
func Default() *Logger {
	once.Do(func() {
		defaultLogger = NewFromConfig(Config{Service: "valuation", Module: "default"})
		slog.SetDefault(defaultLogger.Logger)
	})
	return defaultLogger
}

// Named 派生一个模块名不同的 Logger，共享 Handler。
func (l *Logger) Named(module string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", module)),
		Service: l.Service,
		Module:  module,
	}
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 记录操作耗时，用法: defer logger.LogDuration(ctx, "price")()
func (l *Logger) LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		l.DebugContext(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}
