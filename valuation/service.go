package valuation

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/valuation/algorithm/finance"
	"github.com/wyfcoding/valuation/algorithm/sim"
	"github.com/wyfcoding/valuation/async"
	"github.com/wyfcoding/valuation/cache"
	"github.com/wyfcoding/valuation/config"
	"github.com/wyfcoding/valuation/dlom"
	"github.com/wyfcoding/valuation/logging"
	"github.com/wyfcoding/valuation/metrics"
	"github.com/wyfcoding/valuation/payoffexpr"
	"github.com/wyfcoding/valuation/tracing"
	"github.com/wyfcoding/valuation/worker"
	"github.com/wyfcoding/valuation/xerrors"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Service 估值服务，可被多个 goroutine 并发使用。
type Service struct {
	pricing   atomic.Pointer[config.PricingConfig]
	cacheTTL  time.Duration
	logger    *logging.Logger
	metrics   *metrics.Metrics
	cache     cache.Cache
	ownsCache bool
	pool      *worker.Pool
	exprs     *payoffexpr.Engine
	flight    singleflight.Group // 合并并发的相同请求
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option 服务选项。
type Option func(*Service)

// WithLogger 设置日志记录器。
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics 设置指标采集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache 使用外部缓存，服务关闭时不会关闭它。
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService 按配置创建估值服务并启动批量定价协程池。
// 未通过 WithCache 指定缓存且配置启用缓存时，创建内部 BigCache。
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrInvalidArg, "invalid valuation config")
	}

	s := &Service{cacheTTL: cfg.Cache.TTL, exprs: payoffexpr.NewEngine()}
	pricing := cfg.Pricing
	s.pricing.Store(&pricing)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default().Named("valuation")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics("valuation")
	}
	if s.cache == nil && cfg.Cache.Enabled {
		c, err := cache.NewBigCache(cfg.Cache.TTL, cfg.Cache.MaxMB)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrInternal, "init result cache")
		}
		s.cache, s.ownsCache = c, true
	}

	s.pool = worker.NewPool(
		worker.WithName("valuation"),
		worker.WithSize(cfg.Worker.Size),
		worker.WithQueueSize(cfg.Worker.QueueSize),
		worker.WithLogger(s.logger.Logger),
		worker.WithMetrics(s.metrics),
	)
	s.metrics.RegisterBuildInfo("valuation", cfg.Version)

	return s, nil
}

// Reload 替换定价参数，可注册为 config.RegisterReloadHook 的回调。
func (s *Service) Reload(cfg *config.Config) {
	pricing := cfg.Pricing
	s.pricing.Store(&pricing)
	s.logger.Info("pricing config reloaded",
		"steps_per_year", pricing.StepsPerYear,
		"strict_probabilities", pricing.StrictProbabilities,
		"mc_paths", pricing.MonteCarlo.Paths)
}

// Metrics 返回服务使用的指标采集器。
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Price 对单笔请求定价。相同请求在缓存有效期内直接返回缓存结果，
// 并发的相同请求只计算一次。
func (s *Service) Price(ctx context.Context, req Request) (res *Result, err error) {
	if s.closed.Load() {
		return nil, xerrors.ErrServiceClosed.Clone()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "valuation.Price")
	defer span.End()
	defer func() { tracing.Fail(ctx, err) }()

	pricing := s.pricing.Load()
	start := time.Now()

	n, err := normalize(req, pricing.StepsPerYear, s.exprs)
	if err != nil {
		s.observe("unknown", "unknown", statusError, start)
		s.logger.WarnContext(ctx, "rejected valuation request", "error", err)
		return nil, err
	}
	tracing.Tag(ctx, "valuation.method", string(n.method))
	tracing.Tag(ctx, "valuation.style", string(n.style))
	tracing.Tag(ctx, "valuation.steps", n.params.Steps)

	key := n.key(pricing.StrictProbabilities, pricing.MonteCarlo)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		if hit, ok := s.lookup(ctx, n.method, key); ok {
			return hit, nil
		}
		computed, err := s.compute(n, pricing)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, computed)
		return computed, nil
	})
	if err != nil {
		s.observe(string(n.method), string(n.style), statusError, start)
		s.logger.WarnContext(ctx, "valuation failed", "method", n.method, "error", err)
		return nil, err
	}

	out := *v.(*Result)
	tracing.Tag(ctx, "valuation.cached", out.Cached)
	tracing.Tag(ctx, "valuation.shared", shared)
	s.observe(string(n.method), string(n.style), statusOK, start)
	s.logger.DebugContext(ctx, "valuation done",
		"method", out.Method,
		"type", out.Type,
		"payoff", out.Payoff,
		"style", out.Style,
		"steps", out.Steps,
		"price", out.Price.String(),
		"cached", out.Cached,
		"duration", time.Since(start))

	return &out, nil
}

func (s *Service) compute(n normalized, pricing *config.PricingConfig) (*Result, error) {
	res := &Result{Method: n.method, Type: n.typ, Payoff: n.expression, Style: n.style}
	switch n.method {
	case MethodAnalytic:
		v, err := finance.BlackScholesFrom(n.params).Price(n.typ)
		if err != nil {
			return nil, err
		}
		if res.Price, err = finiteDecimal("price", v); err != nil {
			return nil, err
		}

	case MethodBinomial:
		var opts []finance.BinomialOption
		if pricing.StrictProbabilities {
			opts = append(opts, finance.WithStrictProbabilities())
		}
		v, err := finance.NewBinomialPricer(n.params, opts...).Value(n.payoff, n.style)
		if err != nil {
			return nil, err
		}
		if res.Price, err = finiteDecimal("price", v); err != nil {
			return nil, err
		}
		res.Steps = n.params.Steps

	case MethodMonteCarlo:
		p := n.params
		mc, err := sim.NewMonteCarlo(p.Spot, []float64{p.Expiry}, p.Volatility, p.Rate,
			pricing.MonteCarlo.Paths, p.Dividend, pricing.MonteCarlo.Seed,
			sim.WithChunkSize(pricing.MonteCarlo.Chunk))
		if err != nil {
			return nil, err
		}
		est := mc.Estimate(n.payoff)
		if res.Price, err = finiteDecimal("price", est.Price); err != nil {
			return nil, err
		}
		if res.StdErr, err = finiteDecimal("stderr", est.StdErr); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// finiteDecimal 将计算结果转为十进制；NaN 与无穷大无法表示，返回 ErrNonFiniteResult。
func finiteDecimal(field string, v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, xerrors.ErrNonFiniteResult.Clone().WithContext(field, v)
	}
	return decimal.NewFromFloat(v), nil
}

func (s *Service) lookup(ctx context.Context, method Method, key string) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	var res Result
	if err := s.cache.Get(ctx, key, &res); err != nil {
		if !cache.IsMiss(err) {
			s.logger.WarnContext(ctx, "result cache read failed", "error", err)
		}
		s.metrics.CacheMisses.WithLabelValues(string(method)).Inc()
		return nil, false
	}
	s.metrics.CacheHits.WithLabelValues(string(method)).Inc()
	res.Cached = true
	return &res, true
}

func (s *Service) store(ctx context.Context, key string, res *Result) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, res, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "result cache write failed", "error", err)
	}
}

func (s *Service) observe(method, style, status string, start time.Time) {
	s.metrics.RequestsTotal.WithLabelValues(method, style, status).Inc()
	s.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// PriceBatch 在协程池上并发定价，返回结果与输入顺序一致。
// 单笔失败记录在对应 BatchItem.Err 中；ctx 结束或服务关闭时返回错误。
func (s *Service) PriceBatch(ctx context.Context, reqs []Request) (_ []BatchItem, err error) {
	if s.closed.Load() {
		return nil, xerrors.ErrServiceClosed.Clone()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "valuation.PriceBatch")
	defer span.End()
	defer func() { tracing.Fail(ctx, err) }()
	tracing.Tag(ctx, "valuation.batch_size", len(reqs))
	defer s.logger.LogDuration(ctx, "price batch", "size", len(reqs))()

	items := make([]BatchItem, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		err := s.pool.Submit(ctx, func(context.Context) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					items[i] = BatchItem{Err: xerrors.Wrap(async.PanicError(r), xerrors.ErrInternal, "valuation panicked")}
				}
			}()
			if ctx.Err() != nil {
				items[i].Err = ctx.Err()
				return
			}
			res, err := s.Price(ctx, req)
			items[i] = BatchItem{Result: res, Err: err}
		})
		if err != nil {
			wg.Done()
			s.logger.WarnContext(ctx, "price batch aborted", "submitted", i, "error", err)
			return nil, err
		}
	}

	done := make(chan struct{})
	async.SafeGo(func() {
		wg.Wait()
		close(done)
	})

	select {
	case <-done:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Discount 计算 DLOM 折价。
func (s *Service) Discount(ctx context.Context, req DiscountRequest) (_ *DiscountResult, err error) {
	if s.closed.Load() {
		return nil, xerrors.ErrServiceClosed.Clone()
	}
	ctx, span := tracing.Start(ctx, "valuation.Discount")
	defer span.End()
	defer func() { tracing.Fail(ctx, err) }()
	start := time.Now()

	kind, err := dlom.ParseKind(req.Model)
	if err != nil {
		s.observe("dlom", "none", statusError, start)
		return nil, err
	}

	t := req.Horizon.InexactFloat64()
	sigma := req.Volatility.InexactFloat64()
	r := req.Rate.InexactFloat64()
	q := req.Dividend.InexactFloat64()

	var model dlom.Model
	switch kind {
	case dlom.KindChaffe:
		model = dlom.Chaffe{T: t, Sigma: sigma, R: r, Q: q}
	case dlom.KindDifferentialPut:
		model = dlom.DifferentialPut{T: t, SigmaPreferred: sigma, SigmaCommon: req.SigmaCommon.InexactFloat64(), R: r, Q: q}
	case dlom.KindFinnerty:
		model = dlom.Finnerty{T: t, Sigma: sigma, Q: q}
	case dlom.KindGhaidarov:
		model = dlom.Ghaidarov{T: t, Sigma: sigma, Q: q}
	}

	tracing.Tag(ctx, "valuation.model", string(kind))
	var discount decimal.Decimal
	d, err := model.Calculate()
	if err == nil {
		discount, err = finiteDecimal("discount", d)
	}
	if err != nil {
		s.observe("dlom:"+string(kind), "none", statusError, start)
		s.logger.WarnContext(ctx, "discount failed", "model", kind, "error", err)
		return nil, err
	}
	s.observe("dlom:"+string(kind), "none", statusOK, start)

	return &DiscountResult{
		Model:    string(kind),
		Discount: discount,
		Citation: model.Citation(),
	}, nil
}

// Close 停止协程池（等待已提交任务完成）并释放内部缓存。
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.pool.Stop()
		if s.ownsCache {
			err = s.cache.Close()
		}
		s.logger.Info("valuation service closed")
	})
	return err
}
