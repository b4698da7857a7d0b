package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"expensebot/bot"
	"expensebot/config"
	"expensebot/logger"

	"github.com/gin-gonic/gin"
)

// SecretHeader Telegram 回传的 webhook 密钥头
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateSize = 1 << 20

const defaultHandlerTimeout = 25 * time.Second

// UpdateHandler 处理一条已分类的更新
type UpdateHandler interface {
	Handle(ctx context.Context, u bot.Update)
}

// WebhookHandler Telegram webhook 入口
// 响应体沿用 Telegram 约定的 {ok} / {detail}，不使用通用响应结构
type WebhookHandler struct {
	enabled   bool
	secret    string
	configErr error
	handler   UpdateHandler
	timeout   time.Duration
}

// NewWebhookHandler 创建 webhook 处理器，configErr 非空时所有请求返回 503
// 处理时限取 cfg.HandlerTimeout，由配置校验保证小于服务器写超时
func NewWebhookHandler(cfg config.TelegramConfig, configErr error, h UpdateHandler) *WebhookHandler {
	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	return &WebhookHandler{
		enabled:   cfg.Enabled,
		secret:    cfg.WebhookSecret,
		configErr: configErr,
		handler:   h,
		timeout:   timeout,
	}
}

// Handle 接收 Telegram 更新
// @Summary Telegram webhook
// @Description 接收 Telegram 推送的更新（文本、语音、按钮回调），已识别的更新一律返回 ok
// @Tags Telegram
// @Accept json
// @Produce json
// @Param X-Telegram-Bot-Api-Secret-Token header string false "webhook 密钥"
// @Success 200 {object} map[string]interface{} "ok"
// @Failure 400 {object} map[string]interface{} "请求体不是合法 JSON"
// @Failure 403 {object} map[string]interface{} "密钥不匹配"
// @Failure 503 {object} map[string]interface{} "机器人未启用或配置错误"
// @Router /api/telegram/webhook [post]
func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	if !h.enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Telegram bot disabled"})
		return
	}
	if h.configErr != nil || h.handler == nil {
		log.Error().Err(h.configErr).Msg("Telegram 配置错误")
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Telegram bot misconfigured"})
		return
	}
	if h.secret != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Warn().Str("ip", c.ClientIP()).Msg("webhook 密钥不匹配")
			c.JSON(http.StatusForbidden, gin.H{"detail": "Forbidden"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid payload"})
		return
	}
	update, err := bot.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid payload"})
		return
	}

	// 客户端断开不应中断已开始的处理
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()
	h.handler.Handle(ctx, update)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
