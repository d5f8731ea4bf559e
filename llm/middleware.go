package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/evalflow/llm/circuitbreaker"
	"github.com/BaSui01/evalflow/llm/retry"
	"github.com/BaSui01/evalflow/types"
)

// Middleware wraps a client with additional functionality.
type Middleware func(next Client) Client

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a client with all middleware. The first middleware is outermost.
func (c *Chain) Then(client Client) Client {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		client = c.middlewares[i](client)
	}
	return client
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// LoggingMiddleware logs call establishment at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			start := time.Now()
			stream, err := next.Execute(ctx, req)
			if err != nil {
				logger.Warn("completion call failed",
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				return nil, err
			}
			logger.Debug("completion stream opened",
				zap.Int("user_len", len(req.User())),
				zap.Duration("duration", time.Since(start)),
			)
			return stream, nil
		})
	}
}

// RateLimitMiddleware waits on limiter before each call.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, types.NewError(types.ErrCodeRateLimited, "rate limit wait aborted").
					WithCause(err)
			}
			return next.Execute(ctx, req)
		})
	}
}

// RetryMiddleware retries stream establishment for retryable errors.
// Failures after the stream is open are not retried.
func RetryMiddleware(r retry.Retryer) Middleware {
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			return retry.DoWithResultTyped(r, ctx, func() (Stream, error) {
				s, err := next.Execute(ctx, req)
				if err != nil && !types.IsRetryable(err) {
					return nil, retry.Permanent(err)
				}
				return s, err
			})
		})
	}
}

// CircuitBreakerMiddleware fails fast with BACKEND_UNAVAILABLE while cb is
// open. Only stream establishment is guarded.
func CircuitBreakerMiddleware(cb circuitbreaker.CircuitBreaker) Middleware {
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			var stream Stream
			err := cb.Call(ctx, func() error {
				s, err := next.Execute(ctx, req)
				stream = s
				return err
			})
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
				return nil, types.NewError(types.ErrCodeBackendUnavailable, "completion backend circuit open").
					WithCause(err)
			}
			if err != nil {
				return nil, err
			}
			return stream, nil
		})
	}
}

// CallRecorder receives completion call outcomes.
type CallRecorder interface {
	RecordCompletion(status string, duration time.Duration)
}

// MetricsMiddleware reports each call outcome, measured until the stream is closed.
func MetricsMiddleware(rec CallRecorder) Middleware {
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			start := time.Now()
			stream, err := next.Execute(ctx, req)
			if err != nil {
				rec.RecordCompletion(statusOf(err), time.Since(start))
				return nil, err
			}
			return &observedStream{Stream: stream, done: func(err error) {
				rec.RecordCompletion(statusOf(err), time.Since(start))
			}}, nil
		})
	}
}

// TracingMiddleware opens a span per call that ends when the stream is closed.
func TracingMiddleware() Middleware {
	tracer := otel.Tracer("evalflow/llm")
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, req CompletionRequest) (Stream, error) {
			ctx, span := tracer.Start(ctx, "llm.completion")
			span.SetAttributes(
				attribute.Int("llm.max_tokens", req.Sampling.MaxTokens),
				attribute.Float64("llm.temperature", req.Sampling.Temperature),
			)
			stream, err := next.Execute(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
				return nil, err
			}
			return &observedStream{Stream: stream, done: func(err error) {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
			}}, nil
		})
	}
}

// observedStream calls done once with the first non-EOF error, or nil.
type observedStream struct {
	Stream
	done    func(error)
	lastErr error
	once    sync.Once
}

func (s *observedStream) Next() (string, error) {
	chunk, err := s.Stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		s.lastErr = err
	}
	return chunk, err
}

func (s *observedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() { s.done(s.lastErr) })
	return err
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "error"
}
