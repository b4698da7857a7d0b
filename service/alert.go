package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"expensebot/config"

	"github.com/rs/zerolog"
)

// MessageSender 发送 Telegram 消息
type MessageSender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) (int64, error)
}

// Alerter 运维告警，向 Telegram 会话和邮箱投递异常详情
// 告警失败只记录日志，不影响调用方
type Alerter struct {
	enabled bool
	chatID  string
	maxLen  int
	tg      MessageSender
	email   *EmailService
	log     zerolog.Logger
	now     func() time.Time
}

// NewAlerter 创建告警器，tg 为空时只发邮件
func NewAlerter(cfg config.AlertConfig, tg MessageSender, log zerolog.Logger) *Alerter {
	a := &Alerter{
		enabled: cfg.Enabled,
		chatID:  cfg.ChatID,
		maxLen:  cfg.MaxLength,
		tg:      tg,
		log:     log,
		now:     time.Now,
	}
	if a.maxLen <= 0 {
		a.maxLen = 3500
	}
	if cfg.Email.Enabled {
		email := cfg.Email
		a.email = NewEmailService(&email)
	}
	return a
}

// Report 投递一条告警
func (a *Alerter) Report(ctx context.Context, event string, err error, fields map[string]interface{}) {
	if a == nil {
		return
	}
	l := a.log.Error().Str("event", event).Err(err)
	for k, v := range fields {
		l = l.Interface(k, v)
	}
	l.Msg("ingestion error")

	if !a.enabled {
		return
	}
	text := a.Format(event, err, fields)

	if a.tg != nil && a.chatID != "" {
		if _, sendErr := a.tg.SendMessage(ctx, OutgoingMessage{ChatID: a.chatID, Text: text}); sendErr != nil {
			a.log.Warn().Err(sendErr).Str("event", event).Msg("发送 Telegram 告警失败")
		}
	}
	if a.email != nil {
		if sendErr := a.email.SendAlertEmail(event, text, a.now()); sendErr != nil {
			a.log.Warn().Err(sendErr).Str("event", event).Msg("发送告警邮件失败")
		}
	}
}

// Format 生成告警正文，超过上限时截断
func (a *Alerter) Format(event string, err error, fields map[string]interface{}) string {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	text := fmt.Sprintf("🛑 [ERROR] %s\n\n%s", event, errText)
	if len(fields) > 0 {
		ctxJSON, jerr := json.MarshalIndent(fields, "", "  ")
		if jerr != nil {
			ctxJSON = []byte(fmt.Sprintf("%v", fields))
		}
		text += "\n\nContext:\n" + string(ctxJSON)
	}
	return truncateRunes(text, a.maxLen)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
