package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensebot/config"

	"github.com/avast/retry-go"
	"github.com/sashabaranov/go-openai"
)

// ErrTranscription 语音识别失败
var ErrTranscription = errors.New("voice transcription failed")

// Transcription 语音识别结果
type Transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// WhisperClient OpenAI 兼容的 audio/transcriptions 客户端
type WhisperClient struct {
	client      *openai.Client
	apiKey      string
	model       string
	language    string
	maxAttempts uint
	retryDelay  time.Duration
}

// NewWhisperClient 创建语音识别客户端
func NewWhisperClient(cfg config.SpeechConfig, maxAttempts uint) *WhisperClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &WhisperClient{
		client:      newOpenAIClient(cfg.APIKey, cfg.BaseURL, timeout),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		language:    cfg.Language,
		maxAttempts: maxAttempts,
		retryDelay:  time.Second,
	}
}

// Transcribe 上传音频文件并返回识别文本
func (w *WhisperClient) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	if w.apiKey == "" {
		return Transcription{}, fmt.Errorf("%w: 未配置语音识别密钥", ErrTranscription)
	}

	var out Transcription
	err := retry.Do(
		func() error {
			res, err := w.do(ctx, audioPath)
			if err != nil {
				return err
			}
			out = res
			return nil
		},
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.Attempts(w.maxAttempts),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" {
		return Transcription{}, fmt.Errorf("%w: 识别结果为空", ErrTranscription)
	}
	return out, nil
}

// do 每次尝试都按路径重新打开文件，重试时上传完整音频
func (w *WhisperClient) do(ctx context.Context, audioPath string) (Transcription, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Language: w.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcription{}, upstreamError("audio/transcriptions", err)
	}
	return Transcription{Text: resp.Text, Language: resp.Language, Duration: resp.Duration}, nil
}
