package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// 每次重试尝试都需要先取得限流令牌
func TestBuildClient_RateLimitGatesEveryRetryAttempt(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Backend
	cfg.BaseURL = srv.URL
	cfg.APIKey = "studio"
	cfg.GatewayAPIKey = "gateway"
	cfg.BreakerThreshold = 0
	cfg.MaxRetries = 2
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2

	client := buildClient(cfg, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.Execute(ctx, llm.NewCompletionRequest("sys", "hello", llm.DefaultInferenceSampling()))

	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.ErrCodeRateLimited, ""))
	// burst 2：前两次尝试到达后端，第三次在限流处被拒绝
	assert.Equal(t, int64(2), calls.Load())
}

func TestBuildClient_RetriesWithoutRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Backend
	cfg.BaseURL = srv.URL
	cfg.APIKey = "studio"
	cfg.GatewayAPIKey = "gateway"
	cfg.BreakerThreshold = 0
	cfg.MaxRetries = 1
	cfg.RateLimitRPS = 0

	client := buildClient(cfg, nil, zap.NewNop())
	_, err := client.Execute(context.Background(), llm.NewCompletionRequest("sys", "hello", llm.DefaultInferenceSampling()))

	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.ErrCodeUpstreamError, ""))
	assert.Equal(t, int64(2), calls.Load())
}
