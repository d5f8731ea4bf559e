// =============================================================================
// 📦 evalflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("EVALFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/evalflow/llm"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "EVALFLOW"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 evalflow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Backend 补全后端配置
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Pipeline 批处理配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Evaluation 评分配置
	Evaluation EvaluationConfig `yaml:"evaluation" env:"EVALUATION"`

	// Store 运行历史存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖整批处理时间
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 请求体上限（字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 每 IP 限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表，为空时不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// BackendConfig 补全后端配置
type BackendConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 接口路径
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	// CLOVA Studio API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// API 网关 Key
	GatewayAPIKey string `yaml:"gateway_api_key" env:"GATEWAY_API_KEY"`
	// 等待响应头超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 后端限流，0 表示不限
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 建立流的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 连续后端失败达到该值后熔断，0 表示关闭熔断
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断后等待多久放行试探请求
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// PipelineConfig 批处理配置
type PipelineConfig struct {
	// 并发数，1 为逐行顺序处理
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 单次调用超时（含流读取）
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	// augment 允许的最大倍数
	MaxAugmentationFactor int `yaml:"max_augmentation_factor" env:"MAX_AUGMENTATION_FACTOR"`
	// 采样参数仅支持 YAML 配置
	InferenceSampling    llm.SamplingConfig `yaml:"inference_sampling"`
	AugmentationSampling llm.SamplingConfig `yaml:"augmentation_sampling"`
}

// 评分器类型
const (
	ScorerRandom     = "random"
	ScorerCompletion = "completion"
)

// EvaluationConfig 评分配置
type EvaluationConfig struct {
	// 评分器: random, completion
	Scorer string `yaml:"scorer" env:"SCORER"`
	// completion 评分器使用的评分提示词
	RubricPrompt string `yaml:"rubric_prompt" env:"RUBRIC_PROMPT"`
}

// StoreConfig 运行历史存储配置
type StoreConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接字符串
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置带 env tag 的字段，键名为 PREFIX_SECTION_FIELD
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 使用 ParseDuration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Backend.BaseURL != "" {
		if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "backend.base_url must be an absolute URL")
		}
	}
	if c.Backend.MaxRetries < 0 {
		errs = append(errs, "backend.max_retries must not be negative")
	}
	if c.Backend.BreakerThreshold < 0 {
		errs = append(errs, "backend.breaker_threshold must not be negative")
	}
	if c.Backend.RateLimitRPS < 0 {
		errs = append(errs, "backend.rate_limit_rps must not be negative")
	}

	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, "pipeline.concurrency must be at least 1")
	}
	if c.Pipeline.CallTimeout <= 0 {
		errs = append(errs, "pipeline.call_timeout must be positive")
	}
	if c.Pipeline.MaxAugmentationFactor < 1 {
		errs = append(errs, "pipeline.max_augmentation_factor must be at least 1")
	}
	for name, s := range map[string]llm.SamplingConfig{
		"inference_sampling":    c.Pipeline.InferenceSampling,
		"augmentation_sampling": c.Pipeline.AugmentationSampling,
	} {
		if s.MaxTokens <= 0 {
			errs = append(errs, "pipeline."+name+".max_tokens must be positive")
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			errs = append(errs, "pipeline."+name+".temperature must be between 0 and 2")
		}
		if s.TopP < 0 || s.TopP > 1 {
			errs = append(errs, "pipeline."+name+".top_p must be between 0 and 1")
		}
	}

	switch c.Evaluation.Scorer {
	case ScorerRandom, ScorerCompletion:
	default:
		errs = append(errs, fmt.Sprintf("unknown evaluation.scorer %q", c.Evaluation.Scorer))
	}

	if c.Store.Enabled {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("unsupported store.driver %q", c.Store.Driver))
		}
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required when the store is enabled")
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BackendReady 报告后端凭据是否已配置
func (c *Config) BackendReady() error {
	var missing []string
	if c.Backend.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.Backend.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.Backend.GatewayAPIKey == "" {
		missing = append(missing, "gateway_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("backend not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
