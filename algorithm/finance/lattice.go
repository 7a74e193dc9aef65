package finance

import (
	"math"

	"github.com/wyfcoding/valuation/xerrors"
)

// Lattice 是 Cox-Ross-Rubinstein 重组二叉树。
//
// 节点 (i, j) 表示第 j 步、经历 i 次下跌后的标的价格，仅 i <= j 的下三角区域有效。
// 存储按列展开在一段连续内存中：第 j 列占 j+1 个节点，起始偏移为 j(j+1)/2，
// 上三角区域不占空间。
type Lattice struct {
	params   MarketParameters
	dt       float64 // 单步时长
	u        float64 // 上涨因子
	d        float64 // 下跌因子
	pu       float64 // 风险中性上涨概率
	pd       float64 // 风险中性下跌概率
	discount float64 // 单步贴现因子 exp(-r*dt)
	prices   []float64
}

// BuildLattice 由已校验的市场参数构建价格树。
// dt、u、d、p_u、p_d 与贴现因子只在这里计算一次，回溯阶段直接复用。
func BuildLattice(p MarketParameters) *Lattice {
	m := p.Steps
	dt := p.Expiry / float64(m)
	u := math.Exp(p.Volatility * math.Sqrt(dt))
	d := 1 / u
	pu := (math.Exp((p.Rate-p.Dividend)*dt) - d) / (u - d)

	l := &Lattice{
		params:   p,
		dt:       dt,
		u:        u,
		d:        d,
		pu:       pu,
		pd:       1 - pu,
		discount: math.Exp(-p.Rate * dt),
		prices:   make([]float64, triangular(m+1)),
	}

	l.prices[0] = p.Spot
	for j := 1; j <= m; j++ {
		prev := l.column(j - 1)
		cur := l.column(j)
		for i := range j {
			cur[i] = prev[i] * u
		}
		cur[j] = prev[j-1] * d
	}
	return l
}

// triangular 返回前 n 列的节点总数。
func triangular(n int) int {
	return n * (n + 1) / 2
}

// column 返回第 j 列的可写切片（内部使用）。
func (l *Lattice) column(j int) []float64 {
	start := triangular(j)
	return l.prices[start : start+j+1]
}

// Steps 返回步数 M。
func (l *Lattice) Steps() int { return l.params.Steps }

// Params 返回构建该树的市场参数。
func (l *Lattice) Params() MarketParameters { return l.params }

// Dt 返回单步时长。
func (l *Lattice) Dt() float64 { return l.dt }

// Up 返回上涨因子 u。
func (l *Lattice) Up() float64 { return l.u }

// Down 返回下跌因子 d。
func (l *Lattice) Down() float64 { return l.d }

// ProbUp 返回风险中性上涨概率 p_u。
func (l *Lattice) ProbUp() float64 { return l.pu }

// ProbDown 返回风险中性下跌概率 p_d。
func (l *Lattice) ProbDown() float64 { return l.pd }

// Discount 返回单步贴现因子。
func (l *Lattice) Discount() float64 { return l.discount }

// At 返回节点 (i, j) 的标的价格；上三角区域 (i > j) 返回填充值 0。
func (l *Lattice) At(i, j int) float64 {
	if j < 0 || j > l.params.Steps || i < 0 || i > j {
		return 0
	}
	return l.prices[triangular(j)+i]
}

// Column 返回第 j 列价格的副本，长度为 j+1。
func (l *Lattice) Column(j int) []float64 {
	if j < 0 || j > l.params.Steps {
		return nil
	}
	return append([]float64(nil), l.column(j)...)
}

// Dense 以 (M+1)x(M+1) 方阵形式导出价格树，上三角填 0，便于检查。
func (l *Lattice) Dense() [][]float64 {
	return denseFrom(l.params.Steps, l.At)
}

// CheckProbabilities 检查风险中性概率是否落在 [0, 1] 内。
// 回溯本身不调用该检查；步长相对波动率过粗时概率可能越界，是否拒绝由调用方决定。
func (l *Lattice) CheckProbabilities() error {
	if math.IsNaN(l.pu) || l.pu < 0 || l.pu > 1 || l.pd < 0 || l.pd > 1 {
		return xerrors.ErrProbabilityOutOfRange.Clone().
			WithContext("p_u", l.pu).
			WithContext("p_d", l.pd).
			WithContext("dt", l.dt)
	}
	return nil
}

func denseFrom(m int, at func(i, j int) float64) [][]float64 {
	out := make([][]float64, m+1)
	for i := range out {
		out[i] = make([]float64, m+1)
		for j := i; j <= m; j++ {
			out[i][j] = at(i, j)
		}
	}
	return out
}
