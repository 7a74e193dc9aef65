// Package xerrors 提供带错误码、堆栈与上下文的结构化错误类型。
package xerrors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"slices"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType 错误的大类，决定对外协议的状态码。
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	ErrUnavailable
	ErrNumerical // 输入合法但数值上不可计算
)

type typeInfo struct {
	name string
	http int
	grpc codes.Code
}

var typeTable = map[ErrorType]typeInfo{
	ErrUnknown:     {"Unknown", http.StatusInternalServerError, codes.Unknown},
	ErrInternal:    {"Internal", http.StatusInternalServerError, codes.Internal},
	ErrInvalidArg:  {"InvalidArg", http.StatusBadRequest, codes.InvalidArgument},
	ErrNotFound:    {"NotFound", http.StatusNotFound, codes.NotFound},
	ErrUnavailable: {"Unavailable", http.StatusServiceUnavailable, codes.Unavailable},
	ErrNumerical:   {"Numerical", http.StatusUnprocessableEntity, codes.FailedPrecondition},
}

func (t ErrorType) info() typeInfo {
	if i, ok := typeTable[t]; ok {
		return i
	}
	return typeTable[ErrUnknown]
}

func (t ErrorType) String() string {
	return t.info().name
}

// Error 估值错误。包级目录项只读，使用前先 Clone。
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    int            `json:"code"`
	Message string         `json:"message"` // 对外
	Detail  string         `json:"detail"`  // 排查提示
	Cause   error          `json:"-"`
	Stack   []string       `json:"stack"`
	Context map[string]any `json:"context"` // 出错的参数名与取值
}

// New 创建错误并记录调用点堆栈。
func New(errType ErrorType, code int, message string, detail string, cause error) *Error {
	e := &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
		Context: map[string]any{},
	}
	e.Stack = callers(3)
	return e
}

// Error 格式: [Type] code: message {k=v ...}: cause
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d: %s", e.Type, e.Code, e.Message)
	if len(e.Context) > 0 {
		b.WriteString(" {")
		for i, k := range slices.Sorted(maps.Keys(e.Context)) {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte('}')
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按类型与错误码判等，使 errors.Is 能匹配由目录项派生的实例。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code && e.Type == t.Type
}

// Clone 复制错误并在调用点重新记录堆栈。
func (e *Error) Clone() *Error {
	c := *e
	c.Context = maps.Clone(e.Context)
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	c.Stack = callers(3)
	return &c
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap 包装 err。err 链上已有 *Error 时沿用其类型与错误码，只替换对外消息。
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		c := e.Clone()
		c.Message = msg
		c.Cause = err
		return c
	}
	e := New(errType, int(errType), msg, "", err)
	e.Stack = callers(3)
	return e
}

// FromError 在 err 链上查找 *Error。
func FromError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus 按错误类型映射 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	return e.Type.info().http
}

// GRPCCode 按错误类型映射 gRPC 状态码。
func (e *Error) GRPCCode() codes.Code {
	return e.Type.info().grpc
}

func (e *Error) ToGRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

// callers 记录最多 10 层调用栈，格式为 file:line (func)。
func callers(skip int) []string {
	var pcs [10]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := make([]string, 0, n)
	for {
		f, more := frames.Next()
		stack = append(stack, fmt.Sprintf("%s:%d (%s)", f.File, f.Line, f.Function))
		if !more {
			return stack
		}
	}
}
