// Package dlom 提供基于期权定价的缺乏流动性折价 (DLOM) 模型。
// 所有模型都以 S=K=1 的标准化配置计算，结果是占标的价值的比例。
package dlom

import (
	"math"
	"strings"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/xerrors"
)

// Model 折价模型。
type Model interface {
	// Calculate 返回折价比例。
	Calculate() (float64, error)
	// Citation 返回模型出处。
	Citation() string
}

// Kind 模型名称。
type Kind string

const (
	KindChaffe          Kind = "chaffe"
	KindDifferentialPut Kind = "differential_put"
	KindFinnerty        Kind = "finnerty"
	KindGhaidarov       Kind = "ghaidarov"
)

// ParseKind 解析模型名称。
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindChaffe, KindDifferentialPut, KindFinnerty, KindGhaidarov:
		return k, nil
	default:
		return "", xerrors.ErrInvalidModel.Clone().WithContext("model", s)
	}
}

// Chaffe 以平值欧式看跌期权价格作为折价：限售期内买入保护性看跌的成本。
type Chaffe struct {
	T     float64 // 限售期（年）
	Sigma float64
	R     float64
	Q     float64
}

// Calculate 计算折价。
func (c Chaffe) Calculate() (float64, error) {
	bs, err := finance.NewBlackScholes(1, 1, c.T, c.Sigma, c.R, c.Q)
	if err != nil {
		return 0, err
	}
	return bs.PutPrice(), nil
}

// Citation 模型出处。
func (Chaffe) Citation() string {
	return "Chaffe, D.B., 'Option Pricing as a Proxy for Discount for Lack of Marketability in Private Company Valuations' " +
		"Business Valuation Review, December 1993, pg 182-188"
}

// DifferentialPut 优先股与普通股的差分保护性看跌模型：
// D = 1 - (1 - D_common) / (1 - D_preferred)。
type DifferentialPut struct {
	T              float64
	SigmaPreferred float64
	SigmaCommon    float64
	R              float64
	Q              float64
}

// Calculate 计算折价。
func (d DifferentialPut) Calculate() (float64, error) {
	preferred, err := Chaffe{T: d.T, Sigma: d.SigmaPreferred, R: d.R, Q: d.Q}.Calculate()
	if err != nil {
		return 0, err
	}
	common, err := Chaffe{T: d.T, Sigma: d.SigmaCommon, R: d.R, Q: d.Q}.Calculate()
	if err != nil {
		return 0, err
	}
	return 1 - (1-common)/(1-preferred), nil
}

// Citation 模型出处。
func (DifferentialPut) Citation() string {
	return "Ghaidarov, S. 'The Use of Protective Put Options in Quantifying Marketability Discounts Applicable to Common and Preferred Interests' " +
		"Business Valuation Review, Vol 28, No. 2, pg. 88-99"
}

// Finnerty 平均行权价看跌期权模型（Finnerty 2012 修正版），不依赖无风险利率。
type Finnerty struct {
	T     float64
	Sigma float64
	Q     float64
}

// Calculate 计算折价：
// v²T = σ²T + ln[2(e^{σ²T} - σ²T - 1)] - 2ln(e^{σ²T} - 1)，
// D = e^{-qT}[N(v√T/2) - N(-v√T/2)]。
func (f Finnerty) Calculate() (float64, error) {
	if err := validateHorizon(f.T, f.Sigma, f.Q); err != nil {
		return 0, err
	}
	x := f.Sigma * f.Sigma * f.T
	v := math.Sqrt(x + math.Log(2*(math.Exp(x)-x-1)) - 2*math.Log(math.Exp(x)-1))
	return math.Exp(-f.Q*f.T) * (finance.NormCDF(v/2) - finance.NormCDF(-v/2)), nil
}

// Citation 模型出处。
func (Finnerty) Citation() string {
	return "Finnerty, J.D., 'An Average-Strike Put Option Model of the Marketability Discount' " +
		"The Journal of Derivatives, Summer 2012, Vol 19, No. 4, pg 53-69"
}

// Ghaidarov 平均价格看跌期权模型。
type Ghaidarov struct {
	T     float64
	Sigma float64
	Q     float64
}

// Calculate 计算折价：
// σ_G²T = ln[2(e^{σ²T} - σ²T - 1)] - 2ln(σ²T)，D = e^{-qT}[2N(σ_G√T/2) - 1]。
func (g Ghaidarov) Calculate() (float64, error) {
	if err := validateHorizon(g.T, g.Sigma, g.Q); err != nil {
		return 0, err
	}
	x := g.Sigma * g.Sigma * g.T
	v := math.Sqrt(math.Log(2*(math.Exp(x)-x-1)) - 2*math.Log(x))
	return math.Exp(-g.Q*g.T) * (2*finance.NormCDF(v/2) - 1), nil
}

// Citation 模型出处。
func (Ghaidarov) Citation() string {
	return "Ghaidarov, S., 'Analysis and Critique of the Average Strike Put Option Marketability Discount Model' " +
		"Business Valuation Review, Vol 28, No. 2, 2009"
}

func validateHorizon(t, sigma, q float64) error {
	if t <= 0 || sigma <= 0 || math.IsNaN(t) || math.IsNaN(sigma) {
		return xerrors.ErrInvalidPositive.Clone().
			WithContext("T", t).
			WithContext("sigma", sigma)
	}
	if q < 0 {
		return xerrors.ErrInvalidDividend.Clone().WithContext("q", q)
	}
	return nil
}
