// Package async 提供带 panic 恢复的 goroutine 启动工具。
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrPanicRecovered 表示异步任务中恢复的 panic。
var ErrPanicRecovered = errors.New("async task panic recovered")

// Runner 定义了安全的并发执行器。
type Runner struct {
	logger *slog.Logger
}

// NewRunner 创建执行器，logger 为空时使用 slog.Default()。
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Go 安全地启动一个 goroutine，自动处理 panic。
func (r *Runner) Go(fn func()) {
	go func() {
		defer r.Recover()
		fn()
	}()
}

// GoWithContext 安全地启动一个 goroutine，并注入 context。
func (r *Runner) GoWithContext(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		defer r.Recover()
		fn(ctx)
	}()
}

// Recover 需在 defer 中直接调用；记录 panic 及堆栈。
func (r *Runner) Recover() {
	if rec := recover(); rec != nil {
		r.log().Error("Async task panic recovered",
			"error", PanicError(rec),
			"stack", string(debug.Stack()))
	}
}

func (r *Runner) log() *slog.Logger {
	if r == nil || r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// PanicError 将 recover 得到的值包装为 error，可用 errors.Is(err, ErrPanicRecovered) 判断。
func PanicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanicRecovered, err)
	}
	return fmt.Errorf("%w: %v", ErrPanicRecovered, rec)
}

var defaultRunner = &Runner{}

// SafeGo 使用默认执行器启动 goroutine。
func SafeGo(fn func()) {
	defaultRunner.Go(fn)
}
