package clova

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/internal/tlsutil"
	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// 请求头名称
const (
	HeaderAPIKey        = "X-NCP-CLOVASTUDIO-API-KEY"
	HeaderGatewayAPIKey = "X-NCP-APIGW-API-KEY"
	HeaderRequestID     = "X-NCP-CLOVASTUDIO-REQUEST-ID"
)

// DefaultEndpointPath is used when Config.EndpointPath is empty.
const DefaultEndpointPath = "/testapp/v1/chat-completions/HCX-003"

// Config holds backend endpoint and credentials.
type Config struct {
	// BaseURL is the scheme and host, e.g. "https://clovastudio.stream.ntruss.com".
	BaseURL string

	// EndpointPath is appended to BaseURL.
	EndpointPath string

	APIKey        string
	GatewayAPIKey string

	// HeaderTimeout bounds the wait for response headers. Defaults to 30s.
	HeaderTimeout time.Duration

	// ReadBufferSize is the size of each raw chunk read from the body.
	ReadBufferSize int
}

// Client streams chat completions over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	newID  func() string
}

var _ llm.Client = (*Client)(nil)

// New creates a client. A nil logger is replaced with a no-op logger.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = DefaultEndpointPath
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   tlsutil.StreamingHTTPClient(cfg.HeaderTimeout),
		logger: logger.With(zap.String("component", "clova_client")),
		newID:  uuid.NewString,
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Endpoint returns the full request URL.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(c.cfg.EndpointPath, "/")
}

// requestBody is the wire body: messages plus flattened sampling fields.
type requestBody struct {
	Messages []llm.Message `json:"messages"`
	llm.SamplingConfig
}

// Execute sends req and returns the response body as a stream.
func (c *Client) Execute(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error) {
	body := requestBody{Messages: req.Messages, SamplingConfig: req.Sampling}
	if body.StopBefore == nil {
		body.StopBefore = []string{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrCodeInvalidRequest, "failed to encode completion request").WithCause(err)
	}

	requestID := c.newID()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewBackendUnavailableError(err)
	}
	c.buildHeaders(httpReq, requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, types.NewError(types.ErrCodeTimeout, "completion request cancelled").WithCause(ctxErr)
		}
		c.logger.Warn("completion transport failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, types.NewBackendUnavailableError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		c.logger.Warn("completion request rejected",
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, mapHTTPError(resp.StatusCode, msg)
	}

	c.logger.Debug("completion stream opened",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode))
	return llm.NewReaderStream(resp.Body, c.cfg.ReadBufferSize), nil
}

func (c *Client) buildHeaders(req *http.Request, requestID string) {
	req.Header.Set(HeaderAPIKey, c.cfg.APIKey)
	req.Header.Set(HeaderGatewayAPIKey, c.cfg.GatewayAPIKey)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

// mapHTTPError 将 HTTP 状态码映射为结构化错误
func mapHTTPError(status int, msg string) *types.Error {
	message := fmt.Sprintf("backend returned %d: %s", status, msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrCodeUnauthorized, message).WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrCodeRateLimited, message).
			WithHTTPStatus(status).
			WithRetryable(true)
	case status >= http.StatusInternalServerError:
		return types.NewError(types.ErrCodeUpstreamError, message).
			WithHTTPStatus(status).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrCodeUpstreamError, message).WithHTTPStatus(status)
	}
}

// readErrorMessage 读取错误响应体，优先使用 status.message 字段
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Status struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Status.Message != "" {
		if errResp.Status.Code != "" {
			return fmt.Sprintf("%s (code: %s)", errResp.Status.Message, errResp.Status.Code)
		}
		return errResp.Status.Message
	}
	return strings.TrimSpace(string(data))
}
