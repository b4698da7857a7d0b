package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"expensebot/config"

	"github.com/avast/retry-go"
	"github.com/sashabaranov/go-openai"
)

// ChatRequest 一次补全请求
type ChatRequest struct {
	Model       string // 为空时使用客户端默认模型
	System      string
	Prompt      string
	Temperature float64
	JSON        bool // 要求模型只输出 JSON
}

// Completer 语言模型补全服务
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// StatusError 上游返回非 2xx 状态码
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s 返回状态码 %d: %s", e.Service, e.Code, e.Body)
}

// retryable 网络错误、限流与 5xx 可重试
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func readStatusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Service: service, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// OpenAICompleter OpenAI 兼容的 chat/completions 客户端（默认 Groq）
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxAttempts uint
	retryDelay  time.Duration
}

// NewOpenAICompleter 创建 OpenAI 兼容客户端
func NewOpenAICompleter(cfg config.LLMConfig) *OpenAICompleter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &OpenAICompleter{
		client:      newOpenAIClient(cfg.APIKey, cfg.BaseURL, timeout),
		model:       cfg.Model,
		maxAttempts: attempts,
		retryDelay:  500 * time.Millisecond,
	}
}

func newOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc)
}

// upstreamError 把 go-openai 的错误归一为 StatusError，便于统一判断是否重试
func upstreamError(service string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Service: service, Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &StatusError{Service: service, Code: reqErr.HTTPStatusCode, Body: body}
	}
	return fmt.Errorf("请求 %s 失败: %w", service, err)
}

// Complete 调用 chat/completions，失败时按配置重试
func (c *OpenAICompleter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(req.Temperature),
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	body.Messages = append(body.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var content string
	err := retry.Do(
		func() error {
			resp, err := c.client.CreateChatCompletion(ctx, body)
			if err != nil {
				return upstreamError("chat/completions", err)
			}
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return errors.New("语言模型返回空内容")
			}
			content = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.Attempts(c.maxAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return content, nil
}

// NewCompleter 按配置创建补全服务，未配置密钥时返回 nil（仅使用规则解析）
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "openai", "groq":
		return NewOpenAICompleter(cfg), nil
	case "gemini":
		g, err := NewGeminiCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("不支持的语言模型服务: %s", cfg.Provider)
	}
}
