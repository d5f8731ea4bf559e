// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	table := testutil.NewTable([]string{"q", "a"}, testutil.Row("q", "hi", "a", "yo"))
//	testutil.AssertTableEqual(t, want, got)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📋 数据集辅助
// =============================================================================

// Row 由交替的列名/值构造一行，奇数个参数时最后一个被忽略
func Row(kv ...string) types.Row {
	r := make(types.Row, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = kv[i+1]
	}
	return r
}

// NewTable 构造带列顺序的表
func NewTable(columns []string, rows ...types.Row) types.Table {
	return types.NewTable(columns, types.Dataset(rows))
}

// CloneTable 深拷贝表，用于比较原地修改前后的数据
func CloneTable(t types.Table) types.Table {
	out := types.Table{Columns: append([]string(nil), t.Columns...)}
	if t.Rows != nil {
		out.Rows = make(types.Dataset, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = r.Clone()
		}
	}
	return out
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertRowsEqual 使用 go-cmp 比较两个数据集，失败时输出差异
func AssertRowsEqual(t *testing.T, expected, actual types.Dataset) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

// AssertTableEqual 比较列顺序与行内容
func AssertTableEqual(t *testing.T, expected, actual types.Table) {
	t.Helper()
	if diff := cmp.Diff(expected.Columns, actual.Columns, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	AssertRowsEqual(t, expected.Rows, actual.Rows)
}

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertContains 断言字符串包含子串
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// 🎭 流辅助
// =============================================================================

// DrainStream 读取流中所有原始块，直到 EOF 或错误
func DrainStream(s llm.Stream) ([]string, error) {
	defer s.Close()
	var chunks []string
	for {
		c, err := s.Next()
		if c != "" {
			chunks = append(chunks, c)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, err
		}
	}
}
