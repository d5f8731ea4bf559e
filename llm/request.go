package llm

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 聊天消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SamplingConfig 采样参数，字段名与后端协议一致
type SamplingConfig struct {
	MaxTokens        int      `json:"maxTokens" yaml:"max_tokens"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	TopK             int      `json:"topK" yaml:"top_k"`
	TopP             float64  `json:"topP" yaml:"top_p"`
	RepeatPenalty    float64  `json:"repeatPenalty" yaml:"repeat_penalty"`
	StopBefore       []string `json:"stopBefore" yaml:"stop_before"`
	IncludeAIFilters bool     `json:"includeAiFilters" yaml:"include_ai_filters"`
	Seed             int      `json:"seed" yaml:"seed"`
}

// DefaultInferenceSampling returns the fixed sampling used for per-row inference.
func DefaultInferenceSampling() SamplingConfig {
	return SamplingConfig{
		MaxTokens:        400,
		Temperature:      0.5,
		TopK:             0,
		TopP:             0.8,
		RepeatPenalty:    5.0,
		StopBefore:       []string{},
		IncludeAIFilters: true,
		Seed:             0,
	}
}

// DefaultAugmentationSampling returns the sampling used for variant generation.
func DefaultAugmentationSampling() SamplingConfig {
	return DefaultInferenceSampling()
}

// CompletionRequest is one system+user chat completion. One request produces
// exactly one streamed response. Treat it as immutable once built.
type CompletionRequest struct {
	Messages []Message     `json:"messages"`
	Sampling SamplingConfig `json:"-"`
}

// NewCompletionRequest builds a request from system and user text.
func NewCompletionRequest(system, user string, sampling SamplingConfig) CompletionRequest {
	stop := make([]string, len(sampling.StopBefore))
	copy(stop, sampling.StopBefore)
	sampling.StopBefore = stop

	return CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Sampling: sampling,
	}
}

// System returns the system message content.
func (r CompletionRequest) System() string { return r.content(RoleSystem) }

// User returns the user message content.
func (r CompletionRequest) User() string { return r.content(RoleUser) }

func (r CompletionRequest) content(role Role) string {
	for _, m := range r.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return ""
}
