// Package sim - 几何布朗运动路径模拟与蒙特卡洛期权估值.
package sim

import (
	"math"

	"github.com/sourcegraph/conc"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/xerrors"
)

// DefaultChunkSize 每个并发分片模拟的路径数.
const DefaultChunkSize = 4096

// seedStride 用于把主种子展开为各分片的独立种子 (黄金比例常数).
const seedStride uint64 = 0x9E3779B97F4A7C15

// MonteCarlo 在给定时间网格上模拟标的价格路径.
// 种子是必填参数：相同种子、相同参数总是得到相同路径，与调度顺序无关.
type MonteCarlo struct {
	spot      float64
	grid      []float64 // 各观察点距估值日的时间 (年)
	sigma     float64
	rate      float64
	dividend  float64
	paths     int
	seed      uint64
	chunkSize int
}

// Option 模拟器选项.
type Option func(*MonteCarlo)

// WithChunkSize 设置并发分片大小.
func WithChunkSize(n int) Option {
	return func(mc *MonteCarlo) {
		if n > 0 {
			mc.chunkSize = n
		}
	}
}

// Estimate 折现收益均值及其标准误差.
type Estimate struct {
	Time   float64 // 观察点时间
	Price  float64
	StdErr float64
}

// NewMonteCarlo 校验参数并创建模拟器.
// grid 为单调不减的非负时间序列，paths 为路径数.
func NewMonteCarlo(s float64, grid []float64, sigma, r float64, paths int, q float64, seed uint64, opts ...Option) (*MonteCarlo, error) {
	if sigma <= 0 || r <= 0 || math.IsNaN(sigma) || math.IsNaN(r) {
		return nil, xerrors.ErrInvalidPositive.Clone().
			WithContext("sigma", sigma).
			WithContext("r", r)
	}
	if s < 0 || math.IsNaN(s) {
		return nil, xerrors.ErrInvalidSpotStrike.Clone().WithContext("S", s)
	}
	if q < 0 {
		return nil, xerrors.ErrInvalidDividend.Clone().WithContext("q", q)
	}
	if len(grid) == 0 {
		return nil, xerrors.ErrInvalidGrid.Clone()
	}
	prev := 0.0
	for i, t := range grid {
		if t < prev || math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, xerrors.ErrInvalidGrid.Clone().WithContext("index", i).WithContext("t", t)
		}
		prev = t
	}
	if paths < 1 {
		return nil, xerrors.ErrInvalidPaths.Clone().WithContext("n", paths)
	}

	mc := &MonteCarlo{
		spot:      s,
		grid:      append([]float64(nil), grid...),
		sigma:     sigma,
		rate:      r,
		dividend:  q,
		paths:     paths,
		seed:      seed,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc, nil
}

// Periods 返回观察点个数.
func (mc *MonteCarlo) Periods() int { return len(mc.grid) }

// Paths 返回路径数.
func (mc *MonteCarlo) Paths() int { return mc.paths }

// GeneratePaths 返回 paths x periods 的价格矩阵：
// S * exp(cumsum((r - q - sigma^2/2)*dt + sigma*sqrt(dt)*Z))，dt 为网格差分 (首项相对 0).
// 路径按固定分片并行生成，每个分片使用由主种子派生的独立 PCG 源.
func (mc *MonteCarlo) GeneratePaths() [][]float64 {
	periods := len(mc.grid)
	drift := make([]float64, periods)
	vol := make([]float64, periods)
	prev := 0.0
	for k, t := range mc.grid {
		dt := t - prev
		drift[k] = (mc.rate - mc.dividend - 0.5*mc.sigma*mc.sigma) * dt
		vol[k] = mc.sigma * math.Sqrt(dt)
		prev = t
	}

	out := make([][]float64, mc.paths)
	backing := make([]float64, mc.paths*periods)

	var wg conc.WaitGroup
	for c, start := 0, 0; start < mc.paths; c, start = c+1, start+mc.chunkSize {
		end := min(start+mc.chunkSize, mc.paths)
		rng := rand.New(rand.NewSource(mc.seed + uint64(c)*seedStride))
		wg.Go(func() {
			for i := start; i < end; i++ {
				path := backing[i*periods : (i+1)*periods : (i+1)*periods]
				logS := 0.0
				for k := range periods {
					logS += drift[k] + vol[k]*rng.NormFloat64()
					path[k] = mc.spot * math.Exp(logS)
				}
				out[i] = path
			}
		})
	}
	wg.Wait()

	return out
}

// Estimates 在每个观察点上估计折现收益的均值与标准误差.
func (mc *MonteCarlo) Estimates(payoff finance.Payoff) []Estimate {
	paths := mc.GeneratePaths()
	samples := make([]float64, len(paths))
	out := make([]Estimate, len(mc.grid))
	sqrtN := math.Sqrt(float64(len(paths)))

	for k, t := range mc.grid {
		df := math.Exp(-mc.rate * t)
		for i, path := range paths {
			samples[i] = payoff(path[k]) * df
		}
		mean, std := stat.MeanStdDev(samples, nil)
		if len(samples) < 2 {
			std = 0
		}
		out[k] = Estimate{Time: t, Price: mean, StdErr: std / sqrtN}
	}
	return out
}

// Estimate 返回最后一个观察点 (到期日) 上的估计.
func (mc *MonteCarlo) Estimate(payoff finance.Payoff) Estimate {
	all := mc.Estimates(payoff)
	return all[len(all)-1]
}
