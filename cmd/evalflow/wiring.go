package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/internal/metrics"
	"github.com/BaSui01/evalflow/internal/runstore"
	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/llm/circuitbreaker"
	"github.com/BaSui01/evalflow/llm/providers/clova"
	"github.com/BaSui01/evalflow/llm/retry"
	"github.com/BaSui01/evalflow/pipeline"
)

// buildClient assembles the backend client and its decorators. The first
// middleware is outermost, so a retried call is traced and measured once and
// counts as one breaker failure.
func buildClient(cfg config.BackendConfig, collector *metrics.Collector, logger *zap.Logger) llm.Client {
	backend := clova.New(clova.Config{
		BaseURL:       cfg.BaseURL,
		EndpointPath:  cfg.EndpointPath,
		APIKey:        cfg.APIKey,
		GatewayAPIKey: cfg.GatewayAPIKey,
		HeaderTimeout: cfg.Timeout,
	}, logger)

	chain := llm.NewChain(llm.TracingMiddleware())
	if collector != nil {
		chain.Use(llm.MetricsMiddleware(collector))
	}
	chain.Use(llm.LoggingMiddleware(logger))
	if cfg.BreakerThreshold > 0 {
		chain.Use(llm.CircuitBreakerMiddleware(circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("backend circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}, logger)))
	}
	if cfg.MaxRetries > 0 {
		policy := retry.DefaultRetryPolicy()
		policy.MaxRetries = cfg.MaxRetries
		chain.Use(llm.RetryMiddleware(retry.NewBackoffRetryer(policy, logger)))
	}
	// 限流位于重试之内，每次尝试都消耗令牌
	if cfg.RateLimitRPS > 0 {
		burst := max(cfg.RateLimitBurst, 1)
		chain.Use(llm.RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)))
	}
	return chain.Then(backend)
}

// buildScorer selects the evaluation scorer.
func buildScorer(cfg config.EvaluationConfig, client llm.Client, logger *zap.Logger) (pipeline.Scorer, error) {
	switch cfg.Scorer {
	case config.ScorerRandom, "":
		return pipeline.NewRandomScorer(nil), nil
	case config.ScorerCompletion:
		return pipeline.NewCompletionScorer(client, cfg.RubricPrompt, logger), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", cfg.Scorer)
	}
}

// buildOrchestrator wires the three stages. rec may be nil.
func buildOrchestrator(cfg *config.Config, client llm.Client, rec pipeline.Recorder, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	opts := pipeline.Options{
		Concurrency:           cfg.Pipeline.Concurrency,
		CallTimeout:           cfg.Pipeline.CallTimeout,
		MaxAugmentationFactor: cfg.Pipeline.MaxAugmentationFactor,
	}
	if rec == nil {
		rec = pipeline.NopRecorder()
	}

	scorer, err := buildScorer(cfg.Evaluation, client, logger)
	if err != nil {
		return nil, err
	}

	inf := pipeline.NewInferencer(client, opts, logger).
		WithSampling(cfg.Pipeline.InferenceSampling).
		WithRecorder(rec)
	eval := pipeline.NewEvaluator(scorer, opts, logger).
		WithRecorder(rec)
	aug := pipeline.NewAugmenter(client, opts, logger).
		WithSampling(cfg.Pipeline.AugmentationSampling).
		WithRecorder(rec)

	return pipeline.NewOrchestrator(inf, eval, aug, logger).WithRecorder(rec), nil
}

// openRunStore opens the history store when enabled. A nil store means
// history is off.
func openRunStore(ctx context.Context, cfg config.StoreConfig, collector *metrics.Collector, logger *zap.Logger) (*runstore.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var opts []runstore.Option
	if collector != nil {
		opts = append(opts, runstore.WithQueryRecorder(collector))
		return runstore.Open(ctx, cfg, logger, collector, opts...)
	}
	return runstore.Open(ctx, cfg, logger, nil)
}
