// =============================================================================
// 📦 evalflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/evalflow/llm"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Backend:    DefaultBackendConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Evaluation: DefaultEvaluationConfig(),
		Store:      DefaultStoreConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    32 << 20,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultBackendConfig 返回默认后端配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:        "https://clovastudio.stream.ntruss.com",
		EndpointPath:   "/testapp/v1/chat-completions/HCX-003",
		Timeout:        30 * time.Second,
		RateLimitRPS:   0,
		RateLimitBurst: 1,
		MaxRetries:     2,

		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultPipelineConfig 返回默认批处理配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Concurrency:           1,
		CallTimeout:           60 * time.Second,
		MaxAugmentationFactor: 100,
		InferenceSampling:     llm.DefaultInferenceSampling(),
		AugmentationSampling:  llm.DefaultAugmentationSampling(),
	}
}

// DefaultEvaluationConfig 返回默认评分配置
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{Scorer: ScorerRandom}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Enabled:         false,
		Driver:          "sqlite",
		DSN:             "evalflow.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "evalflow",
		SampleRate:   0.1,
	}
}
