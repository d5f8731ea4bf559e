package api

import (
	"encoding/json"
	"time"
)

// =============================================================================
// 批处理请求类型
// =============================================================================

// LLMRequest is the body of POST /api/llm.
// @Description 批处理请求结构
type LLMRequest struct {
	// inference | evaluate | augment
	Action string `json:"action" example:"inference"`
	// 行数组，每行是扁平的字符串对象
	Data json.RawMessage `json:"data" swaggertype:"array,object"`
	// 可选的列顺序，缺省时按首次出现的键推导
	Headers []string `json:"headers,omitempty"`
	// 系统提示所在列名
	SystemPrompt string `json:"systemPrompt,omitempty" example:"system"`
	// 用户输入所在列名
	UserInput string `json:"userInput,omitempty" example:"question"`
	// 每行输出条数（含原行），仅 augment 使用
	AugmentationFactor *int `json:"augmentationFactor,omitempty" example:"3"`
	// 改写指令，仅 augment 使用
	AugmentationPrompt *string `json:"augmentationPrompt,omitempty"`
}

// LLMResponse is the success body of POST /api/llm.
type LLMResponse struct {
	Result  []map[string]string `json:"result"`
	Headers []string            `json:"headers"`
	RunID   string              `json:"runId,omitempty"`
}

// ErrorResponse is every error body. Error carries the human-readable message;
// Code is the machine-readable error code.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// 运行历史类型
// =============================================================================

// RunView is one entry of GET /api/v1/runs.
type RunView struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Rows       int       `json:"rows"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Variants   int       `json:"variants,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
}

// RunsResponse lists recent runs, newest first.
type RunsResponse struct {
	Runs []RunView `json:"runs"`
}
