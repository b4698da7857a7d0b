package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeErrorMessage(t *testing.T) {
	fallback := "Operațiune eșuată"
	testErr := errors.New("internal database error")

	// nil err 返回 fallback
	assert.Equal(t, fallback, SafeErrorMessage(nil, fallback))

	// release 模式返回 fallback，不暴露错误详情
	GlobalConfig = &Config{Server: ServerConfig{Mode: "release"}}
	defer func() { GlobalConfig = nil }()
	assert.Equal(t, fallback, SafeErrorMessage(testErr, fallback))

	// debug 模式返回 err.Error()
	GlobalConfig = &Config{Server: ServerConfig{Mode: "debug"}}
	assert.Equal(t, "internal database error", SafeErrorMessage(testErr, fallback))

	// GlobalConfig 为 nil 时返回 err.Error()（视为开发环境）
	GlobalConfig = nil
	assert.Equal(t, "internal database error", SafeErrorMessage(testErr, fallback))
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer func() { GlobalConfig = nil }()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Same(t, cfg, GlobalConfig)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "MDL", cfg.Expense.HomeCurrency)
	assert.Equal(t, 10*time.Minute, cfg.Expense.PendingTTL)
	assert.Equal(t, "whisper-large-v3-turbo", cfg.Speech.Model)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, "ro", cfg.Speech.Language)
	assert.Equal(t, 3500, cfg.Alert.MaxLength)
	assert.Equal(t, 24*time.Hour, cfg.Security.JWTExpireTime)
	assert.False(t, cfg.Telegram.Enabled)
	assert.Less(t, cfg.Telegram.HandlerTimeout, cfg.Server.WriteTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ExternalFileAndEnv(t *testing.T) {
	defer func() { GlobalConfig = nil }()

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "server:\n  port: \"9090\"\nllm:\n  api_key: \"file-key\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("EXPENSEBOT_EXPENSE_HOME_CURRENCY", "eur")
	t.Setenv("EXPENSEBOT_TELEGRAM_WEBHOOK_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "EUR", cfg.Expense.HomeCurrency)
	assert.Equal(t, "s3cret", cfg.Telegram.WebhookSecret)
	// 语音密钥回落为语言模型密钥
	assert.Equal(t, "file-key", cfg.Speech.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: "mysql"}}
	assert.NoError(t, cfg.Validate())

	cfg.Telegram.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Telegram.BotToken = "token"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	assert.Error(t, cfg.Validate())
	cfg.Database.Driver = "postgres"

	cfg.Security.EncryptionKey = "c2hvcnQ="
	assert.Error(t, cfg.Validate())
	cfg.Security.EncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "gemini"
	assert.Error(t, cfg.Validate())
}

func TestHandlerTimeoutBelowWriteTimeout(t *testing.T) {
	tests := []struct {
		name    string
		write   time.Duration
		handler time.Duration
		want    time.Duration
		wantErr bool
	}{
		{name: "derived from write timeout", write: 30 * time.Second, want: 24 * time.Second},
		{name: "explicit below", write: 150 * time.Second, handler: 120 * time.Second, want: 120 * time.Second},
		{name: "equal rejected", write: 30 * time.Second, handler: 30 * time.Second, want: 30 * time.Second, wantErr: true},
		{name: "above rejected", write: 30 * time.Second, handler: 2 * time.Minute, want: 2 * time.Minute, wantErr: true},
		{name: "no write timeout", handler: time.Minute, want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{WriteTimeout: tt.write},
				Telegram: TelegramConfig{HandlerTimeout: tt.handler},
				Database: DatabaseConfig{Driver: "mysql"},
			}
			cfg.applyDefaults()
			assert.Equal(t, tt.want, cfg.Telegram.HandlerTimeout)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
			if tt.write > 0 {
				assert.Less(t, cfg.HandlerBudget(), tt.write)
			}
		})
	}
}

func TestHandlerTimeout_EnvOverrideValidated(t *testing.T) {
	defer func() { GlobalConfig = nil }()
	t.Setenv("EXPENSEBOT_SERVER_WRITE_TIMEOUT", "30s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	// 默认 120s 超过 30s 写超时，启动前应被拒绝
	assert.Equal(t, 120*time.Second, cfg.Telegram.HandlerTimeout)
	assert.Error(t, cfg.Validate())
	assert.Equal(t, 24*time.Second, cfg.HandlerBudget())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "1234****cdef", mask("1234567890abcdef"))
}
