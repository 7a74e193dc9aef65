// Package finance - 期权定价引擎：二叉树（CRR）、Black-Scholes 解析解及其共用的市场参数。
package finance

import (
	"math"

	"github.com/wyfcoding/valuation/xerrors"
)

// TradingDay 一个交易日对应的年化时间长度。
const TradingDay = 1.0 / 252

// MarketParameters 定价所需的市场参数，构造后不可变。
type MarketParameters struct {
	Spot       float64 // S: 标的资产价格
	Strike     float64 // K: 行权价格
	Expiry     float64 // T: 到期时间（年）
	Volatility float64 // sigma: 年化波动率
	Rate       float64 // r: 连续复利无风险利率
	Dividend   float64 // q: 连续股息收益率
	Steps      int     // M: 二叉树步数
}

// NewMarketParameters 校验并创建市场参数。
// 任一约束不满足时返回 InvalidArg 错误，错误消息指明违反的约束。
func NewMarketParameters(s, k, t, sigma, r, q float64, m int) (MarketParameters, error) {
	if err := validateMarket(s, k, t, sigma, r, q); err != nil {
		return MarketParameters{}, err
	}
	if m < 1 {
		return MarketParameters{}, xerrors.ErrInvalidSteps.Clone().WithContext("M", m)
	}
	return MarketParameters{
		Spot:       s,
		Strike:     k,
		Expiry:     t,
		Volatility: sigma,
		Rate:       r,
		Dividend:   q,
		Steps:      m,
	}, nil
}

// validateMarket 是解析解与二叉树共用的边界校验。
func validateMarket(s, k, t, sigma, r, q float64) error {
	// 按参数顺序检查，多个非有限值时总是报告第一个
	inputs := []struct {
		name string
		v    float64
	}{{"S", s}, {"K", k}, {"T", t}, {"sigma", sigma}, {"r", r}, {"q", q}}
	for _, in := range inputs {
		if math.IsNaN(in.v) || math.IsInf(in.v, 0) {
			return xerrors.ErrNotFinite.Clone().WithContext(in.name, in.v)
		}
	}
	if t <= 0 || sigma <= 0 || r <= 0 {
		return xerrors.ErrInvalidPositive.Clone().
			WithContext("T", t).
			WithContext("sigma", sigma).
			WithContext("r", r)
	}
	if s < 0 || k < 0 {
		return xerrors.ErrInvalidSpotStrike.Clone().
			WithContext("S", s).
			WithContext("K", k)
	}
	if q < 0 {
		return xerrors.ErrInvalidDividend.Clone().WithContext("q", q)
	}
	return nil
}

// StepsForHorizon 按给定步长把期限换算为整数步数（四舍五入，至少 1 步）。
// 例如 StepsForHorizon(5, TradingDay) == 1260。
func StepsForHorizon(t, stepLength float64) int {
	if stepLength <= 0 || t <= 0 {
		return 1
	}
	m := int(math.Round(t / stepLength))
	if m < 1 {
		return 1
	}
	return m
}

// WithSteps 返回步数替换后的参数副本。
func (p MarketParameters) WithSteps(m int) (MarketParameters, error) {
	return NewMarketParameters(p.Spot, p.Strike, p.Expiry, p.Volatility, p.Rate, p.Dividend, m)
}
