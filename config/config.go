// Package config 提供估值服务的配置加载、校验与热更新能力.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/valuation/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version string        `mapstructure:"version" toml:"version"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
	Pricing PricingConfig `mapstructure:"pricing" toml:"pricing"`
	Worker  WorkerConfig  `mapstructure:"worker"  toml:"worker"`
	Cache   CacheConfig   `mapstructure:"cache"   toml:"cache"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`
	Console    bool   `mapstructure:"console"     toml:"console"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    validate:"min=0"` // 单个文件最大大小 (MB)
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"min=0"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     validate:"min=0"` // 天
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"    validate:"required_if=Enabled true"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// PricingConfig 定价引擎参数.
type PricingConfig struct {
	// StepsPerYear 请求未指定步数时，按期限 * StepsPerYear 推导二叉树步数.
	StepsPerYear        int              `mapstructure:"steps_per_year"       toml:"steps_per_year"       validate:"min=1"`
	StrictProbabilities bool             `mapstructure:"strict_probabilities" toml:"strict_probabilities"`
	MonteCarlo          MonteCarloConfig `mapstructure:"montecarlo"           toml:"montecarlo"`
}

// MonteCarloConfig 蒙特卡洛模拟参数.
type MonteCarloConfig struct {
	Paths int    `mapstructure:"paths" toml:"paths" validate:"min=1"`
	Seed  uint64 `mapstructure:"seed"  toml:"seed"`
	Chunk int    `mapstructure:"chunk" toml:"chunk" validate:"min=1"`
}

// WorkerConfig 批量定价协程池参数.
type WorkerConfig struct {
	Size      int `mapstructure:"size"       toml:"size"       validate:"min=1"`
	QueueSize int `mapstructure:"queue_size" toml:"queue_size" validate:"min=0"`
}

// CacheConfig 本地结果缓存参数.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" toml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"     toml:"ttl"     validate:"required_if=Enabled true"`
	MaxMB   int           `mapstructure:"max_mb"  toml:"max_mb"  validate:"min=0"`
}

// Default 返回未提供配置文件时使用的默认配置.
func Default() *Config {
	return &Config{
		Version: "v1",
		Log:     LogConfig{Level: "info", MaxSize: 100, MaxBackups: 5, MaxAge: 30},
		Metrics: MetricsConfig{Port: ":9090", Path: "/metrics", Enabled: true},
		Tracing: TracingConfig{ServiceName: "valuation", OTLPEndpoint: "localhost:4317", SampleRatio: 1},
		Pricing: PricingConfig{
			StepsPerYear: 252,
			MonteCarlo:   MonteCarloConfig{Paths: 100_000, Seed: 42, Chunk: 4096},
		},
		Worker: WorkerConfig{Size: 8, QueueSize: 256},
		Cache:  CacheConfig{Enabled: true, TTL: 10 * time.Minute, MaxMB: 64},
	}
}

// Validate 校验配置.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// LoggingConfig 转换为 logging 包的配置.
func (c *Config) LoggingConfig(service string) logging.Config {
	return logging.Config{
		Service:    service,
		Module:     "valuation",
		Level:      c.Log.Level,
		File:       c.Log.File,
		Console:    c.Log.Console,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

var (
	validate = validator.New()

	mu       sync.Mutex
	current  *viper.Viper
	onReload []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调，回调收到的是新校验通过的配置副本.
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

// Load 读取 TOML 配置文件，支持 APP_ 前缀的环境变量覆盖，校验后开启文件监听.
// 文件中未出现的键沿用 Default().
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	conf, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = v
	mu.Unlock()

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		next, err := decode(v)
		if err != nil {
			slog.Error("reload config failed", "error", err)
			return
		}
		logging.SetLevel(next.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		mu.Lock()
		hooks := slices.Clone(onReload)
		mu.Unlock()
		for _, hook := range hooks {
			hook(next)
		}
	})
	v.WatchConfig()

	return conf, nil
}

func decode(v *viper.Viper) (*Config, error) {
	conf := Default()
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setDefaults 注册所有键，使 AutomaticEnv 对文件中缺失的键同样生效.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("pricing.steps_per_year", d.Pricing.StepsPerYear)
	v.SetDefault("pricing.strict_probabilities", d.Pricing.StrictProbabilities)
	v.SetDefault("pricing.montecarlo.paths", d.Pricing.MonteCarlo.Paths)
	v.SetDefault("pricing.montecarlo.seed", d.Pricing.MonteCarlo.Seed)
	v.SetDefault("pricing.montecarlo.chunk", d.Pricing.MonteCarlo.Chunk)
	v.SetDefault("worker.size", d.Worker.Size)
	v.SetDefault("worker.queue_size", d.Worker.QueueSize)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_mb", d.Cache.MaxMB)
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return current
}
