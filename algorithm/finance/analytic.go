package finance

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/valuation/xerrors"
)

// BlackScholes 欧式期权 Black-Scholes-Merton 解析定价（含连续股息）。
// 二叉树收敛性测试以它作为基准，树本身从不调用它。
type BlackScholes struct {
	s, k, t, sigma, r, q float64
}

// Greeks 期权价格及敏感度。Vega、Rho 按 1% 变动计，Theta 按日计。
type Greeks struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// NewBlackScholes 校验参数并创建解析定价器。
func NewBlackScholes(s, k, t, sigma, r, q float64) (*BlackScholes, error) {
	if err := validateMarket(s, k, t, sigma, r, q); err != nil {
		return nil, err
	}
	return &BlackScholes{s: s, k: k, t: t, sigma: sigma, r: r, q: q}, nil
}

// BlackScholesFrom 使用市场参数（忽略步数）创建解析定价器。
func BlackScholesFrom(p MarketParameters) *BlackScholes {
	return &BlackScholes{s: p.Spot, k: p.Strike, t: p.Expiry, sigma: p.Volatility, r: p.Rate, q: p.Dividend}
}

// D1 返回 d1。S=0 时为 -Inf，K=0 时为 +Inf。
func (bs *BlackScholes) D1() float64 {
	return (math.Log(bs.s/bs.k) + (bs.r-bs.q+0.5*bs.sigma*bs.sigma)*bs.t) / (bs.sigma * math.Sqrt(bs.t))
}

// D2 返回 d2。
func (bs *BlackScholes) D2() float64 {
	return bs.D1() - bs.sigma*math.Sqrt(bs.t)
}

// CallPrice 看涨期权价格。
func (bs *BlackScholes) CallPrice() float64 {
	d1 := bs.D1()
	d2 := d1 - bs.sigma*math.Sqrt(bs.t)
	return bs.s*math.Exp(-bs.q*bs.t)*normCDF(d1) - bs.k*math.Exp(-bs.r*bs.t)*normCDF(d2)
}

// PutPrice 看跌期权价格。
func (bs *BlackScholes) PutPrice() float64 {
	d1 := bs.D1()
	d2 := d1 - bs.sigma*math.Sqrt(bs.t)
	return bs.k*math.Exp(-bs.r*bs.t)*normCDF(-d2) - bs.s*math.Exp(-bs.q*bs.t)*normCDF(-d1)
}

// Price 按期权类型定价。
func (bs *BlackScholes) Price(optionType OptionType) (float64, error) {
	switch optionType {
	case OptionTypeCall:
		return bs.CallPrice(), nil
	case OptionTypePut:
		return bs.PutPrice(), nil
	default:
		return 0, xerrors.ErrInvalidOptionType.Clone().WithContext("type", string(optionType))
	}
}

// Greeks 一次性计算价格及所有希腊字母。
func (bs *BlackScholes) Greeks(optionType OptionType) (*Greeks, error) {
	s, k, t, r, sigma, q := bs.s, bs.k, bs.t, bs.r, bs.sigma, bs.q

	d1 := bs.D1()
	d2 := d1 - sigma*math.Sqrt(t)

	nD1 := normCDF(d1)
	nD2 := normCDF(d2)
	expRT := math.Exp(-r * t)
	expQT := math.Exp(-q * t)
	phiD1 := normPDF(d1)

	res := &Greeks{}
	switch optionType {
	case OptionTypeCall:
		res.Price = s*expQT*nD1 - k*expRT*nD2
		res.Delta = expQT * nD1
		res.Theta = (-s*expQT*phiD1*sigma/(2*math.Sqrt(t)) - r*k*expRT*nD2 + q*s*expQT*nD1) / 365
		res.Rho = k * t * expRT * nD2 / 100
	case OptionTypePut:
		res.Price = k*expRT*normCDF(-d2) - s*expQT*normCDF(-d1)
		res.Delta = expQT * (nD1 - 1)
		res.Theta = (-s*expQT*phiD1*sigma/(2*math.Sqrt(t)) + r*k*expRT*normCDF(-d2) - q*s*expQT*normCDF(-d1)) / 365
		res.Rho = -k * t * expRT * normCDF(-d2) / 100
	default:
		return nil, xerrors.ErrInvalidOptionType.Clone().WithContext("type", string(optionType))
	}

	res.Gamma = expQT * phiD1 / (s * sigma * math.Sqrt(t))
	res.Vega = s * expQT * phiD1 * math.Sqrt(t) / 100

	return res, nil
}

// PriceVector 对向量输入逐元素定价。长度为 1 的切片按标量广播，
// 其余切片长度必须一致，否则返回 ErrDimMismatch。
func PriceVector(optionType OptionType, s, k, t, sigma, r, q []float64) ([]float64, error) {
	inputs := [][]float64{s, k, t, sigma, r, q}
	n := 1
	for _, in := range inputs {
		switch {
		case len(in) == 0:
			return nil, xerrors.ErrDimMismatch.Clone().WithDetail("empty input vector")
		case len(in) == 1:
		case n == 1:
			n = len(in)
		case len(in) != n:
			return nil, xerrors.ErrDimMismatch.Clone().
				WithContext("expected", n).
				WithContext("got", len(in))
		}
	}

	at := func(in []float64, i int) float64 {
		if len(in) == 1 {
			return in[0]
		}
		return in[i]
	}

	out := make([]float64, n)
	for i := range n {
		bs, err := NewBlackScholes(at(s, i), at(k, i), at(t, i), at(sigma, i), at(r, i), at(q, i))
		if err != nil {
			return nil, err
		}
		if out[i], err = bs.Price(optionType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NormCDF 标准正态分布累积分布函数。
func NormCDF(x float64) float64 {
	return normCDF(x)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
