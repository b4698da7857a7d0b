package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensebot/config"

	"google.golang.org/genai"
)

// DefaultGeminiModel 未指定 gemini 模型时使用
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiCompleter 基于 genai SDK 的补全服务
type GeminiCompleter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiCompleter 创建 Gemini 客户端
func NewGeminiCompleter(ctx context.Context, cfg config.LLMConfig) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 genai 客户端失败: %w", err)
	}
	model := cfg.Model
	if !strings.HasPrefix(model, "gemini") {
		model = DefaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GeminiCompleter{client: client, model: model, timeout: timeout}, nil
}

// Complete 调用 GenerateContent
func (g *GeminiCompleter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if !strings.HasPrefix(model, "gemini") {
		model = g.model
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini 返回空内容")
	}
	return text, nil
}
