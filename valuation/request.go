// Package valuation 是期权估值与 DLOM 折价的服务层：
// 十进制输入输出、方法分发、结果缓存、批量并发与指标采集。
package valuation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/config"
	"github.com/wyfcoding/valuation/payoffexpr"
	"github.com/wyfcoding/valuation/xerrors"
)

// Method 定价方法。
type Method string

const (
	MethodAnalytic   Method = "analytic"
	MethodBinomial   Method = "binomial"
	MethodMonteCarlo Method = "montecarlo"
)

// ParseMethod 解析定价方法，空字符串视为二叉树。
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodBinomial, nil
	case MethodAnalytic, MethodBinomial, MethodMonteCarlo:
		return m, nil
	default:
		return "", xerrors.ErrInvalidMethod.Clone().WithContext("method", s)
	}
}

// Request 单笔期权定价请求。
// Steps 为零时按 Expiry * StepsPerYear 推导，仅二叉树方法使用。
// Payoff 非空时按表达式计算到期收益（变量 S、K），OptionType 被忽略；解析解不支持自定义收益。
type Request struct {
	OptionType string          `json:"option_type"`
	Payoff     string          `json:"payoff,omitempty"`
	Style      string          `json:"style"`
	Method     string          `json:"method"`
	Spot       decimal.Decimal `json:"spot"`
	Strike     decimal.Decimal `json:"strike"`
	Expiry     decimal.Decimal `json:"expiry"`
	Volatility decimal.Decimal `json:"volatility"`
	Rate       decimal.Decimal `json:"rate"`
	Dividend   decimal.Decimal `json:"dividend"`
	Steps      decimal.Decimal `json:"steps"`
}

// Result 定价结果。StdErr 仅蒙特卡洛方法非零。
type Result struct {
	Price  decimal.Decimal       `json:"price"`
	StdErr decimal.Decimal       `json:"std_err"`
	Method Method                `json:"method"`
	Type   finance.OptionType    `json:"option_type,omitempty"`
	Payoff string                `json:"payoff,omitempty"`
	Style  finance.ExerciseStyle `json:"style"`
	Steps  int                   `json:"steps,omitempty"`
	Cached bool                  `json:"-"`
}

// BatchItem 批量定价中单笔请求的结果，顺序与输入一致。
type BatchItem struct {
	Result *Result
	Err    error
}

// DiscountRequest DLOM 折价请求。SigmaCommon 仅 differential_put 模型使用，
// 此时 Volatility 为优先股波动率；Rate 不参与 finnerty 与 ghaidarov。
type DiscountRequest struct {
	Model       string          `json:"model"`
	Horizon     decimal.Decimal `json:"horizon"`
	Volatility  decimal.Decimal `json:"volatility"`
	SigmaCommon decimal.Decimal `json:"sigma_common"`
	Rate        decimal.Decimal `json:"rate"`
	Dividend    decimal.Decimal `json:"dividend"`
}

// DiscountResult 折价比例及模型出处。
type DiscountResult struct {
	Model    string          `json:"model"`
	Discount decimal.Decimal `json:"discount"`
	Citation string          `json:"citation"`
}

// normalized 校验并归一化后的请求。
type normalized struct {
	method     Method
	typ        finance.OptionType
	expression string
	payoff     finance.Payoff
	style      finance.ExerciseStyle
	params     finance.MarketParameters
}

// key 缓存与合并请求的键，包含所有影响结果的定价参数。
func (n normalized) key(strict bool, mc config.MonteCarloConfig) string {
	p := n.params
	key := fmt.Sprintf("%s|%s|%q|%s|%v|%v|%v|%v|%v|%v",
		n.method, n.typ, n.expression, n.style, p.Spot, p.Strike, p.Expiry, p.Volatility, p.Rate, p.Dividend)
	switch n.method {
	case MethodBinomial:
		key += fmt.Sprintf("|m=%d|strict=%t", p.Steps, strict)
	case MethodMonteCarlo:
		key += fmt.Sprintf("|paths=%d|seed=%d|chunk=%d", mc.Paths, mc.Seed, mc.Chunk)
	}
	return key
}

// resolveSteps 将十进制步数转换为整数；零值按期限推导。
func resolveSteps(steps, expiry decimal.Decimal, stepsPerYear int) (int, error) {
	if steps.IsZero() {
		return finance.StepsForHorizon(expiry.InexactFloat64(), 1/float64(stepsPerYear)), nil
	}
	if !steps.IsInteger() {
		return 0, xerrors.ErrFractionalSteps.Clone().WithContext("M", steps.String())
	}
	if !steps.IsPositive() {
		return 0, xerrors.ErrInvalidSteps.Clone().WithContext("M", steps.String())
	}
	return int(steps.IntPart()), nil
}

func normalize(req Request, stepsPerYear int, exprs *payoffexpr.Engine) (normalized, error) {
	method, err := ParseMethod(req.Method)
	if err != nil {
		return normalized{}, err
	}
	var (
		typ        finance.OptionType
		expression = strings.TrimSpace(req.Payoff)
	)
	if expression == "" {
		if typ, err = finance.ParseOptionType(req.OptionType); err != nil {
			return normalized{}, err
		}
	} else if method == MethodAnalytic {
		return normalized{}, xerrors.ErrInvalidPayoff.Clone().
			WithContext("method", string(method)).
			WithDetail("analytic method prices call and put only")
	}
	style := finance.ExerciseEuropean
	if req.Style != "" {
		if style, err = finance.ParseExerciseStyle(req.Style); err != nil {
			return normalized{}, err
		}
	}
	if method != MethodBinomial && style != finance.ExerciseEuropean {
		return normalized{}, xerrors.ErrInvalidExerciseStyle.Clone().
			WithContext("method", string(method)).
			WithContext("style", string(style))
	}

	steps := 1
	if method == MethodBinomial {
		if steps, err = resolveSteps(req.Steps, req.Expiry, stepsPerYear); err != nil {
			return normalized{}, err
		}
	}

	params, err := finance.NewMarketParameters(
		req.Spot.InexactFloat64(),
		req.Strike.InexactFloat64(),
		req.Expiry.InexactFloat64(),
		req.Volatility.InexactFloat64(),
		req.Rate.InexactFloat64(),
		req.Dividend.InexactFloat64(),
		steps,
	)
	if err != nil {
		return normalized{}, err
	}

	var payoff finance.Payoff
	if expression != "" {
		payoff, err = exprs.Compile(expression, params.Strike)
	} else {
		payoff, err = typ.Payoff(params.Strike)
	}
	if err != nil {
		return normalized{}, err
	}

	return normalized{
		method:     method,
		typ:        typ,
		expression: expression,
		payoff:     payoff,
		style:      style,
		params:     params,
	}, nil
}
