package finance

import (
	"math"
	"strings"

	"github.com/wyfcoding/valuation/xerrors"
)

// Payoff 把标的价格映射为非负的合约价值，必须是无状态纯函数。
type Payoff func(spot float64) float64

// OptionType 期权类型。
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// ParseOptionType 解析期权类型（大小写不敏感）。
func ParseOptionType(s string) (OptionType, error) {
	switch t := OptionType(strings.ToLower(strings.TrimSpace(s))); t {
	case OptionTypeCall, OptionTypePut:
		return t, nil
	default:
		return "", xerrors.ErrInvalidOptionType.Clone().WithContext("type", s)
	}
}

// Payoff 返回该期权类型在行权价 k 下的内在价值函数。
func (t OptionType) Payoff(k float64) (Payoff, error) {
	switch t {
	case OptionTypeCall:
		return CallPayoff(k), nil
	case OptionTypePut:
		return PutPayoff(k), nil
	default:
		return nil, xerrors.ErrInvalidOptionType.Clone().WithContext("type", string(t))
	}
}

// CallPayoff max(S-K, 0)。
func CallPayoff(k float64) Payoff {
	return func(s float64) float64 { return math.Max(s-k, 0) }
}

// PutPayoff max(K-S, 0)。
func PutPayoff(k float64) Payoff {
	return func(s float64) float64 { return math.Max(k-s, 0) }
}

// ForwardPayoff 直接返回标的价格，欧式回溯结果应为 S*e^(-qT)。
func ForwardPayoff() Payoff {
	return func(s float64) float64 { return s }
}
