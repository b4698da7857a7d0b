// Package bot Telegram 会话入口：更新分类、命令处理与确认按钮回调
package bot

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidPayload 请求体不是合法 JSON
var ErrInvalidPayload = errors.New("invalid update payload")

// Update 分类后的更新，具体类型为 TextMessage、CommandMessage、VoiceMessage、
// CallbackClick 或 Ignorable 之一
type Update interface {
	chat() int64
}

// TextMessage 普通文本消息
type TextMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
}

// CommandMessage 以 / 开头的命令
type CommandMessage struct {
	ChatID  int64
	Command string // 不含 / 与 @bot 后缀，小写
	Args    string
}

// VoiceMessage 语音消息
type VoiceMessage struct {
	ChatID    int64
	MessageID int64
	FileID    string
	Duration  int
}

// CallbackClick 内联按钮点击
type CallbackClick struct {
	ID        string
	ChatID    int64
	MessageID int64
	Data      string
}

// Ignorable 无需处理的更新
type Ignorable struct {
	ChatID int64
	Reason string
}

func (u TextMessage) chat() int64    { return u.ChatID }
func (u CommandMessage) chat() int64 { return u.ChatID }
func (u VoiceMessage) chat() int64   { return u.ChatID }
func (u CallbackClick) chat() int64  { return u.ChatID }
func (u Ignorable) chat() int64      { return u.ChatID }

type rawChat struct {
	ID int64 `json:"id"`
}

type rawVoice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

type rawMessage struct {
	MessageID int64     `json:"message_id"`
	Chat      *rawChat  `json:"chat"`
	Text      string    `json:"text"`
	Voice     *rawVoice `json:"voice"`
}

type rawCallback struct {
	ID      string      `json:"id"`
	Data    string      `json:"data"`
	Message *rawMessage `json:"message"`
}

type rawUpdate struct {
	UpdateID      int64        `json:"update_id"`
	Message       *rawMessage  `json:"message"`
	EditedMessage *rawMessage  `json:"edited_message"`
	CallbackQuery *rawCallback `json:"callback_query"`
}

// Decode 解析 webhook 请求体
// 只有 JSON 语法错误返回错误，无法识别的结构一律归为 Ignorable
func Decode(body []byte) (Update, error) {
	var raw rawUpdate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrInvalidPayload
	}

	if cb := raw.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return Ignorable{Reason: "callback without message"}, nil
		}
		return CallbackClick{
			ID:        cb.ID,
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.MessageID,
			Data:      cb.Data,
		}, nil
	}

	msg := raw.Message
	if msg == nil {
		msg = raw.EditedMessage
	}
	if msg == nil {
		return Ignorable{Reason: "unsupported update"}, nil
	}
	if msg.Chat == nil {
		return Ignorable{Reason: "message without chat"}, nil
	}
	chatID := msg.Chat.ID

	if msg.Voice != nil && msg.Voice.FileID != "" {
		return VoiceMessage{
			ChatID:    chatID,
			MessageID: msg.MessageID,
			FileID:    msg.Voice.FileID,
			Duration:  msg.Voice.Duration,
		}, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Ignorable{ChatID: chatID, Reason: "empty message"}, nil
	}
	if strings.HasPrefix(text, "/") {
		return parseCommand(chatID, text), nil
	}
	return TextMessage{ChatID: chatID, MessageID: msg.MessageID, Text: text}, nil
}

func parseCommand(chatID int64, text string) CommandMessage {
	head, args, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return CommandMessage{
		ChatID:  chatID,
		Command: strings.ToLower(head),
		Args:    strings.TrimSpace(args),
	}
}
