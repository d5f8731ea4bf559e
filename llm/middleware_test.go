package llm_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/llm/circuitbreaker"
	"github.com/BaSui01/evalflow/llm/retry"
	"github.com/BaSui01/evalflow/llm/streaming"
	"github.com/BaSui01/evalflow/testutil/mocks"
	"github.com/BaSui01/evalflow/types"
)

func testRequest() llm.CompletionRequest {
	return llm.NewCompletionRequest("sys", "hello", llm.DefaultInferenceSampling())
}

func drain(t *testing.T, s llm.Stream) string {
	t.Helper()
	text, _, err := streaming.Collect(s, nil)
	require.NoError(t, err)
	return text
}

type callRecord struct {
	status string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []callRecord
}

func (r *fakeRecorder) RecordCompletion(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, callRecord{status: status})
}

func (r *fakeRecorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.status
	}
	return out
}

func fastRetryer(maxRetries int) retry.Retryer {
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = maxRetries
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond
	policy.Jitter = false
	return retry.NewBackoffRetryer(policy, zap.NewNop())
}

func TestChain_OrderOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) llm.Middleware {
		return func(next llm.Client) llm.Client {
			return llm.ClientFunc(func(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error) {
				order = append(order, name)
				return next.Execute(ctx, req)
			})
		}
	}

	chain := llm.NewChain(mark("a")).Use(mark("b"))
	assert.Equal(t, 2, chain.Len())

	client := chain.Then(mocks.NewMockClient().WithResponse("ok"))
	s, err := client.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", drain(t, s))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestLoggingMiddleware_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := types.NewBackendUnavailableError(errors.New("refused"))
	client := llm.LoggingMiddleware(zap.New(core))(mocks.NewMockClient().WithError(boom))

	_, err := client.Execute(context.Background(), testRequest())
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.Equal(t, 1, logs.FilterMessage("completion call failed").Len())
}

func TestRateLimitMiddleware_AbortedWait(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	mock := mocks.NewMockClient()
	client := llm.RateLimitMiddleware(limiter)(mock)

	s, err := client.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	_ = s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.Execute(ctx, testRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeRateLimited, types.GetErrorCode(err))
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetryMiddleware_RetriesRetryableErrors(t *testing.T) {
	boom := types.NewBackendUnavailableError(errors.New("refused"))
	calls := 0
	flaky := llm.ClientFunc(func(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error) {
		calls++
		if calls < 3 {
			return nil, boom
		}
		return llm.NewSliceStream(mocks.DataEvents("finally"), nil), nil
	})
	client := llm.RetryMiddleware(fastRetryer(2))(flaky)
	s, err := client.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "finally", drain(t, s))
	assert.Equal(t, 3, calls)
}

func TestRetryMiddleware_NonRetryableNotRetried(t *testing.T) {
	bad := types.NewError(types.ErrCodeUpstreamError, "status 400")
	mock := mocks.NewMockClient().WithError(bad)

	client := llm.RetryMiddleware(fastRetryer(3))(mock)
	_, err := client.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamError, types.GetErrorCode(err))
	assert.Equal(t, 1, mock.CallCount())
}

func TestMetricsMiddleware_RecordsOnClose(t *testing.T) {
	rec := &fakeRecorder{}

	ok := llm.MetricsMiddleware(rec)(mocks.NewMockClient().WithResponse("x"))
	s, err := ok.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, rec.statuses(), "recorded before the stream was consumed")
	drain(t, s)
	assert.Equal(t, []string{"success"}, rec.statuses())

	broken := llm.MetricsMiddleware(rec)(mocks.NewMockClient().
		WithStreamError(types.NewError(types.ErrCodeUpstreamError, "reset")))
	s, err = broken.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	_, _, err = streaming.Collect(s, nil)
	require.Error(t, err)

	failed := llm.MetricsMiddleware(rec)(mocks.NewMockClient().WithError(context.DeadlineExceeded))
	_, err = failed.Execute(context.Background(), testRequest())
	require.Error(t, err)

	assert.Equal(t, []string{"success", "UPSTREAM_ERROR", "timeout"}, rec.statuses())
}

func TestTracingMiddleware_SpanEndsWithStream(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	client := llm.TracingMiddleware()(mocks.NewMockClient().WithResponse("traced"))
	s, err := client.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, exp.GetSpans())

	assert.Equal(t, "traced", drain(t, s))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.completion", spans[0].Name)
}

func TestCircuitBreakerMiddleware_FailsFast(t *testing.T) {
	boom := types.NewBackendUnavailableError(errors.New("refused"))
	mock := mocks.NewMockClient().WithError(boom)
	cb := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{Threshold: 2, ResetTimeout: time.Hour}, nil)
	client := llm.CircuitBreakerMiddleware(cb)(mock)

	for i := 0; i < 2; i++ {
		_, err := client.Execute(context.Background(), testRequest())
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, err := client.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, types.ErrCodeBackendUnavailable, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
	assert.Equal(t, 2, mock.CallCount())
}

func TestCircuitBreakerMiddleware_PassesStream(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(nil, nil)
	client := llm.CircuitBreakerMiddleware(cb)(mocks.NewMockClient().WithResponse("fine"))
	s, err := client.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "fine", drain(t, s))
}

func TestCompletionRequest(t *testing.T) {
	sampling := llm.DefaultInferenceSampling()
	sampling.StopBefore = []string{"###"}
	req := llm.NewCompletionRequest("be brief", "hi", sampling)

	assert.Equal(t, "be brief", req.System())
	assert.Equal(t, "hi", req.User())
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)

	sampling.StopBefore[0] = "changed"
	assert.Equal(t, []string{"###"}, req.Sampling.StopBefore)
}

func TestDefaultInferenceSampling(t *testing.T) {
	s := llm.DefaultInferenceSampling()
	assert.Equal(t, 400, s.MaxTokens)
	assert.Equal(t, 0.5, s.Temperature)
	assert.Equal(t, 0.8, s.TopP)
	assert.Equal(t, 5.0, s.RepeatPenalty)
	assert.True(t, s.IncludeAIFilters)
	assert.NotNil(t, s.StopBefore)
}

func TestReaderStream(t *testing.T) {
	rc := io.NopCloser(&chunkReader{parts: []string{"ab", "", "cd"}})
	s := llm.NewReaderStream(rc, 0)

	var got []string
	for {
		c, err := s.Next()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, c)
	}
	assert.Equal(t, []string{"ab", "cd"}, got)
	assert.NoError(t, s.Close())
}

type chunkReader struct {
	parts []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	part := r.parts[0]
	r.parts = r.parts[1:]
	return copy(p, part), nil
}

func TestSliceStream(t *testing.T) {
	boom := errors.New("boom")
	s := llm.NewSliceStream([]string{"a"}, boom)
	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", c)
	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
}
