// MockClient 是补全后端 llm.Client 的测试模拟实现。
//
// 支持固定响应、原始事件块、按请求动态应答与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BaSui01/evalflow/llm"
)

// --- MockClient 结构 ---

// MockClient 是 llm.Client 的模拟实现
type MockClient struct {
	mu sync.Mutex

	// 响应配置
	response  string
	chunks    []string
	err       error
	streamErr error
	responder func(req llm.CompletionRequest) (string, error)

	// 调用记录
	calls []llm.CompletionRequest

	// 行为控制
	delay     time.Duration
	failAfter int
	callCount int
}

var _ llm.Client = (*MockClient)(nil)

// --- 构造函数和 Builder 方法 ---

// NewMockClient 创建新的 MockClient，默认应答 "Mock response"
func NewMockClient() *MockClient {
	return &MockClient{response: "Mock response", failAfter: -1}
}

// WithResponse 设置固定响应内容，以单个 data: 事件返回
func (m *MockClient) WithResponse(response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	m.chunks = nil
	return m
}

// WithChunks 设置原始响应块，原样返回
func (m *MockClient) WithChunks(chunks ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = chunks
	return m
}

// WithError 设置 Execute 返回的错误
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamError 设置读取完所有块后返回的传输错误
func (m *MockClient) WithStreamError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamErr = err
	return m
}

// WithResponder 按请求生成应答，优先于固定响应
func (m *MockClient) WithResponder(fn func(req llm.CompletionRequest) (string, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithDelay 设置每次调用的模拟延迟，遵守 ctx 取消
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 在成功 n 次调用后返回 WithError 设置的错误
func (m *MockClient) WithFailAfter(n int) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// --- llm.Client 实现 ---

// Execute 实现 llm.Client
func (m *MockClient) Execute(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.callCount++
	n := m.callCount
	delay := m.delay
	err := m.err
	failAfter := m.failAfter
	responder := m.responder
	response := m.response
	chunks := m.chunks
	streamErr := m.streamErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil && (failAfter < 0 || n > failAfter) {
		return nil, err
	}

	if responder != nil {
		text, rerr := responder(req)
		if rerr != nil {
			return nil, rerr
		}
		return llm.NewSliceStream(DataEvents(text), streamErr), nil
	}
	if chunks != nil {
		return llm.NewSliceStream(chunks, streamErr), nil
	}
	return llm.NewSliceStream(DataEvents(response), streamErr), nil
}

// --- 查询方法 ---

// Calls 返回所有已记录的请求副本
func (m *MockClient) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset 清空调用记录
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

// DataEvents 将每个片段编码为一行 data: 事件
func DataEvents(fragments ...string) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		b, _ := json.Marshal(map[string]any{
			"message": map[string]string{"role": "assistant", "content": f},
		})
		out = append(out, "data:"+string(b)+"\n\n")
	}
	return out
}
