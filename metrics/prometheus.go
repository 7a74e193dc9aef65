package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了独立的 Prometheus 注册表及估值服务的标准指标。
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec   // 定价请求总量 (维度: method, style, status)
	RequestDuration *prometheus.HistogramVec // 定价耗时分布 (维度: method)
	CacheHits       *prometheus.CounterVec   // 结果缓存命中 (维度: method)
	CacheMisses     *prometheus.CounterVec   // 结果缓存未命中 (维度: method)
	BuildInfo       *prometheus.GaugeVec
}

// NewMetrics 初始化指标采集器，自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.RequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "valuation_requests_total",
		Help: "Total number of valuation requests",
	}, []string{"method", "style", "status"})

	m.RequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "valuation_duration_seconds",
		Help:    "Valuation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"method"})

	m.CacheHits = m.NewCounterVec(prometheus.CounterOpts{
		Name: "valuation_cache_hits_total",
		Help: "Total number of valuation result cache hits",
	}, []string{"method"})

	m.CacheMisses = m.NewCounterVec(prometheus.CounterOpts{
		Name: "valuation_cache_misses_total",
		Help: "Total number of valuation result cache misses",
	}, []string{"method"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewCounter 创建并注册一个无维度的计数器指标。
func (m *Metrics) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	m.registry.MustRegister(c)
	return c
}

// NewGauge 创建并注册一个无维度的仪表盘指标。
func (m *Metrics) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	m.registry.MustRegister(g)
	return g
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表，便于测试中直接采集。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Expose 在指定地址启动独立的 HTTP 服务器暴露指标，返回优雅关闭函数。
func (m *Metrics) Expose(addr, path string) func() {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
