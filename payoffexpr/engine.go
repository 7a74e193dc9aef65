// Package payoffexpr 将到期收益表达式编译为 finance.Payoff，例如 "max(S - K, 0)"。
// 表达式可使用变量 S（节点标的价格）与 K（行权价），以及 expr 内置函数 max、min、abs 等。
package payoffexpr

import (
	"math"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/xerrors"
)

// maxPrograms 编译缓存上限，超出后整体清空。
const maxPrograms = 256

// Env 表达式求值环境。
type Env struct {
	S float64
	K float64
}

// Engine 编译并缓存收益表达式，可并发使用。
type Engine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEngine 创建表达式引擎。
func NewEngine() *Engine {
	return &Engine{programs: make(map[string]*vm.Program)}
}

// Compile 编译表达式并绑定行权价，返回可用于二叉树回溯或蒙特卡洛的收益函数。
// 求值失败或结果非数值时收益为 NaN，由回溯过程向上传播。
func (e *Engine) Compile(expression string, strike float64) (finance.Payoff, error) {
	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	return func(s float64) float64 {
		out, err := expr.Run(program, Env{S: s, K: strike})
		if err != nil {
			return math.NaN()
		}
		v, ok := toFloat(out)
		if !ok {
			return math.NaN()
		}
		return v
	}, nil
}

// Validate 仅校验表达式能否编译且在一个样本点上返回数值。
func (e *Engine) Validate(expression string) error {
	payoff, err := e.Compile(expression, 1)
	if err != nil {
		return err
	}
	if math.IsNaN(payoff(1)) {
		return xerrors.ErrInvalidPayoff.Clone().
			WithContext("expression", expression).
			WithDetail("expression must evaluate to a number")
	}
	return nil
}

func (e *Engine) program(expression string) (*vm.Program, error) {
	key := strings.TrimSpace(expression)
	if key == "" {
		return nil, xerrors.ErrInvalidPayoff.Clone().WithDetail("empty payoff expression")
	}

	e.mu.RLock()
	program, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(key, expr.Env(Env{}))
	if err != nil {
		return nil, xerrors.ErrInvalidPayoff.Clone().
			WithContext("expression", key).
			WithDetail("compile payoff: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.programs) >= maxPrograms {
		clear(e.programs)
	}
	e.programs[key] = program
	return program, nil
}

// Len 返回已缓存的编译结果数量。
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
