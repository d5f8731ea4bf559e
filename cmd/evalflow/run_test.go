package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/api"
	"github.com/BaSui01/evalflow/pipeline"
)

// newFakeBackend 模拟流式补全后端：回显最后一条消息
func newFakeBackend(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		reply, _ := json.Marshal(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "echo: " + body.Messages[len(body.Messages)-1].Content},
		})
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "id:1\nevent:token\ndata:"+string(reply)+"\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func writeRunConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	return writeFile(t, dir, "evalflow.yaml", fmt.Sprintf(`
backend:
  base_url: %s
  endpoint_path: /v1/chat
  api_key: studio
  gateway_api_key: gateway
  max_retries: 0
log:
  level: error
`, baseURL))
}

func executeRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"run"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCmd_Inference(t *testing.T) {
	var calls int64
	backend := newFakeBackend(t, &calls)
	dir := t.TempDir()
	cfgPath := writeRunConfig(t, dir, backend.URL)
	input := writeFile(t, dir, "rows.json", `[{"sys":"be brief","q":"hello"},{"sys":"","q":"bye"}]`)

	out, err := executeRun(t, "--config", cfgPath, "--action", "inference", "--input", input,
		"--system-column", "sys", "--user-column", "q")
	require.NoError(t, err)

	var resp api.LLMResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Result, 2)
	assert.Equal(t, "echo: hello", resp.Result[0]["assistant"])
	assert.Equal(t, "echo: bye", resp.Result[1]["assistant"])
	assert.Equal(t, []string{"sys", "q", "assistant"}, resp.Headers)
	assert.NotEmpty(t, resp.RunID)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestRunCmd_EvaluateWritesOutputFile(t *testing.T) {
	var calls int64
	backend := newFakeBackend(t, &calls)
	dir := t.TempDir()
	cfgPath := writeRunConfig(t, dir, backend.URL)
	input := writeFile(t, dir, "rows.json", `[{"q":"a","assistant":"x"},{"q":"b","assistant":"y"}]`)
	output := filepath.Join(dir, "out.json")

	_, err := executeRun(t, "-c", cfgPath, "-a", "evaluate", "-i", input, "-o", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var resp api.LLMResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Result, 2)
	for _, row := range resp.Result {
		score, err := strconv.Atoi(row["LLM_Eval"])
		require.NoError(t, err)
		assert.True(t, score >= pipeline.MinScore && score <= pipeline.MaxScore, score)
	}
	// 随机评分器不调用后端
	assert.EqualValues(t, 0, atomic.LoadInt64(&calls))
}

func TestRunCmd_AugmentRequiresParameters(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeRunConfig(t, dir, "http://127.0.0.1:1")
	input := writeFile(t, dir, "rows.json", `[{"q":"a"}]`)

	_, err := executeRun(t, "-c", cfgPath, "-a", "augment", "-i", input, "--prompt", "Paraphrase:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "augmentationFactor")
}

func TestRunCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeRunConfig(t, dir, "http://127.0.0.1:1")

	t.Run("missing input file", func(t *testing.T) {
		_, err := executeRun(t, "-c", cfgPath, "-a", "inference", "-i", filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read input")
	})

	t.Run("input not an array", func(t *testing.T) {
		input := writeFile(t, dir, "obj.json", `{"q":"a"}`)
		_, err := executeRun(t, "-c", cfgPath, "-a", "inference", "-i", input)
		require.Error(t, err)
	})

	t.Run("unknown action", func(t *testing.T) {
		input := writeFile(t, dir, "rows.json", `[{"q":"a"}]`)
		_, err := executeRun(t, "-c", cfgPath, "-a", "translate", "-i", input)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "translate"))
	})

	t.Run("required flags", func(t *testing.T) {
		_, err := executeRun(t, "-c", cfgPath)
		require.Error(t, err)
	})
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "evalflow "+Version)
	assert.Contains(t, out.String(), "Git Commit")
}

func TestHealthCmd(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"health", "--addr", healthy.URL + "/"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "OK\n", out.String())

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()
	err := checkHealth(context.Background(), unhealthy.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
