package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expensebot/config"

	"github.com/avast/retry-go"
	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Telegram 文本格式
const (
	ParseModeHTML     = "HTML"
	ParseModeMarkdown = "Markdown"
)

// InlineKeyboardButton 内联按钮
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboardMarkup 内联键盘
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// OutgoingMessage sendMessage 参数
type OutgoingMessage struct {
	ChatID      string                `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessage editMessageText 参数
type EditMessage struct {
	ChatID      string                `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// CallbackAnswer answerCallbackQuery 参数
type CallbackAnswer struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// TelegramClient Bot API 客户端，方法调用委托给 go-telegram/bot
type TelegramClient struct {
	bot     *tgbot.Bot
	initErr error
	client  *http.Client
}

// NewTelegramClient 创建 Bot API 客户端
// 只发起请求不轮询，跳过启动时的 getMe 检查
func NewTelegramClient(cfg config.TelegramConfig) *TelegramClient {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	t := &TelegramClient{client: &http.Client{Timeout: timeout}}
	if cfg.BotToken == "" {
		t.initErr = errors.New("未配置 telegram.bot_token")
		return t
	}
	t.bot, t.initErr = tgbot.New(cfg.BotToken,
		tgbot.WithServerURL(base),
		tgbot.WithHTTPClient(timeout, t.client),
		tgbot.WithSkipGetMe(),
	)
	return t
}

func (t *TelegramClient) ready() error {
	if t.initErr != nil {
		return t.initErr
	}
	if t.bot == nil {
		return errors.New("telegram 客户端未初始化")
	}
	return nil
}

func inlineKeyboard(m *InlineKeyboardMarkup) *tgmodels.InlineKeyboardMarkup {
	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(m.InlineKeyboard))
	for _, row := range m.InlineKeyboard {
		buttons := make([]tgmodels.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgmodels.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
		}
		rows = append(rows, buttons)
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SendMessage 发送消息，返回消息 ID
func (t *TelegramClient) SendMessage(ctx context.Context, msg OutgoingMessage) (int64, error) {
	if err := t.ready(); err != nil {
		return 0, err
	}
	params := &tgbot.SendMessageParams{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: tgmodels.ParseMode(msg.ParseMode),
	}
	if msg.ReplyMarkup != nil {
		params.ReplyMarkup = inlineKeyboard(msg.ReplyMarkup)
	}
	sent, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	return int64(sent.ID), nil
}

// EditMessageText 原地修改消息内容，ReplyMarkup 为空时移除按钮
func (t *TelegramClient) EditMessageText(ctx context.Context, msg EditMessage) error {
	if err := t.ready(); err != nil {
		return err
	}
	params := &tgbot.EditMessageTextParams{
		ChatID:    msg.ChatID,
		MessageID: int(msg.MessageID),
		Text:      msg.Text,
		ParseMode: tgmodels.ParseMode(msg.ParseMode),
	}
	if msg.ReplyMarkup != nil {
		params.ReplyMarkup = inlineKeyboard(msg.ReplyMarkup)
	}
	if _, err := t.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

// AnswerCallbackQuery 响应按钮点击
func (t *TelegramClient) AnswerCallbackQuery(ctx context.Context, ans CallbackAnswer) error {
	if err := t.ready(); err != nil {
		return err
	}
	_, err := t.bot.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: ans.CallbackQueryID,
		Text:            ans.Text,
		ShowAlert:       ans.ShowAlert,
	})
	if err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

// DownloadFile 下载文件写入 dst
// 库只提供下载链接，文件内容用同一个 http.Client 获取
func (t *TelegramClient) DownloadFile(ctx context.Context, fileID string, dst io.Writer) error {
	if err := t.ready(); err != nil {
		return err
	}
	file, err := t.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return fmt.Errorf("getFile: %w", err)
	}
	if file.FilePath == "" {
		return errors.New("getFile 未返回 file_path")
	}
	link := t.bot.FileDownloadLink(file)

	var data []byte
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
			if err != nil {
				return err
			}
			resp, err := t.client.Do(req)
			if err != nil {
				return fmt.Errorf("下载文件失败: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return readStatusError("file download", resp)
			}
			data, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}
	_, err = dst.Write(data)
	return err
}
