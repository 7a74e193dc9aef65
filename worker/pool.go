// Package worker 提供有界协程池，用于批量定价等可并行的计算任务。
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/valuation/async"
	"github.com/wyfcoding/valuation/metrics"
	"github.com/wyfcoding/valuation/xerrors"
)

var (
	ErrPoolClosed  = xerrors.ErrServiceClosed
	ErrPoolFull    = xerrors.ErrPoolFull
	ErrTaskTimeout = xerrors.ErrTaskTimeout
)

// Task 是 worker 执行的任务函数。
type Task func(ctx context.Context)

type settings struct {
	name    string
	size    int
	queue   int
	logger  *slog.Logger
	onPanic func(any)
	metrics *metrics.Metrics
}

// Option 定义配置选项。
type Option func(*settings)

// WithName 设置池名称，作为指标的 pool 标签。
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithSize 设置 worker 数量，非正数忽略。
func WithSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithQueueSize 设置任务队列容量，0 表示无缓冲。
func WithQueueSize(size int) Option {
	return func(s *settings) {
		if size >= 0 {
			s.queue = size
		}
	}
}

// WithPanicHandler 设置任务 panic 后的回调，替代默认的错误日志。
func WithPanicHandler(handler func(any)) Option {
	return func(s *settings) { s.onPanic = handler }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// poolStats 池的运行指标，nil 接收者上的方法为空操作。
type poolStats struct {
	workers prometheus.Gauge
	queued  prometheus.Gauge
	panics  prometheus.Counter
}

func newPoolStats(m *metrics.Metrics, name string) *poolStats {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"pool": name}
	return &poolStats{
		workers: m.NewGauge(prometheus.GaugeOpts{
			Name:        "worker_pool_active_workers",
			Help:        "Number of live workers in the pool",
			ConstLabels: labels,
		}),
		queued: m.NewGauge(prometheus.GaugeOpts{
			Name:        "worker_pool_queue_length",
			Help:        "Tasks waiting in the pool queue",
			ConstLabels: labels,
		}),
		panics: m.NewCounter(prometheus.CounterOpts{
			Name:        "worker_pool_recovered_panics_total",
			Help:        "Task panics recovered by the pool",
			ConstLabels: labels,
		}),
	}
}

func (s *poolStats) workerDelta(d float64) {
	if s != nil {
		s.workers.Add(d)
	}
}

func (s *poolStats) queueLen(n int) {
	if s != nil {
		s.queued.Set(float64(n))
	}
}

func (s *poolStats) panicked() {
	if s != nil {
		s.panics.Inc()
	}
}

// Pool 固定数量 worker 的有界任务池。Stop 之前已入队的任务都会被执行。
type Pool struct {
	cfg    settings
	tasks  chan Task
	quit   chan struct{}
	stats  *poolStats
	runner *async.Runner

	mu     sync.RWMutex // Submit 持读锁，Stop 持写锁关闭 tasks
	wg     sync.WaitGroup
	closed atomic.Bool
	active atomic.Int32
}

// NewPool 创建并启动 worker 池，默认 10 个 worker、队列容量 100。
func NewPool(opts ...Option) *Pool {
	cfg := settings{name: "default-pool", size: 10, queue: 100, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.queue),
		quit:   make(chan struct{}),
		stats:  newPoolStats(cfg.metrics, cfg.name),
		runner: async.NewRunner(cfg.logger),
	}

	cfg.logger.Info("worker pool starting", "name", cfg.name, "size", cfg.size, "queue", cfg.queue)
	for range cfg.size {
		p.wg.Add(1)
		p.active.Add(1)
		p.stats.workerDelta(1)
		p.runner.Go(p.work)
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	defer func() {
		p.active.Add(-1)
		p.stats.workerDelta(-1)
	}()

	for task := range p.tasks {
		p.stats.queueLen(len(p.tasks))
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.stats.panicked()
		if p.cfg.onPanic != nil {
			p.cfg.onPanic(r)
			return
		}
		p.cfg.logger.Error("worker task panic recovered", "pool", p.cfg.name, "error", async.PanicError(r))
	}()
	task(context.Background())
}

// Submit 提交任务。队列已满时阻塞，直到有空位、ctx 结束或池被关闭。
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.enqueue(ctx, task, true)
}

// SubmitWithTimeout 在 timeout 内未能入队时返回 ErrTaskTimeout。
func (p *Pool) SubmitWithTimeout(task Task, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := p.Submit(ctx, task)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTaskTimeout.Clone().WithContext("timeout", timeout.String())
	}
	return err
}

// TrySubmit 非阻塞提交，队列已满时立即返回 ErrPoolFull。
func (p *Pool) TrySubmit(task Task) error {
	return p.enqueue(context.Background(), task, false)
}

func (p *Pool) enqueue(ctx context.Context, task Task, wait bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrPoolClosed.Clone().WithContext("pool", p.cfg.name)
	}

	if wait {
		select {
		case p.tasks <- task:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return ErrPoolClosed.Clone().WithContext("pool", p.cfg.name)
		}
	} else {
		select {
		case p.tasks <- task:
		default:
			return ErrPoolFull.Clone().WithContext("pool", p.cfg.name)
		}
	}
	p.stats.queueLen(len(p.tasks))
	return nil
}

// Active 返回存活的 worker 数量。
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Stop 停止接收新任务，执行完队列中剩余任务后返回。可重复调用。
func (p *Pool) Stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.quit)

	p.mu.Lock()
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cfg.logger.Info("worker pool stopped", "name", p.cfg.name)
}
