package bot

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"expensebot/approval"
	"expensebot/database"
	"expensebot/extraction"
	"expensebot/models"
	"expensebot/service"
	"expensebot/stats"
	"expensebot/voice"

	"github.com/rs/zerolog"
)

// Messenger Telegram 出站调用
type Messenger interface {
	SendMessage(ctx context.Context, msg service.OutgoingMessage) (int64, error)
	EditMessageText(ctx context.Context, msg service.EditMessage) error
	AnswerCallbackQuery(ctx context.Context, ans service.CallbackAnswer) error
	DownloadFile(ctx context.Context, fileID string, dst io.Writer) error
}

// Extractor 文本识别
type Extractor interface {
	Extract(ctx context.Context, text string, categories []string) extraction.Result
}

// VoiceProcessor 语音转文字
type VoiceProcessor interface {
	Process(ctx context.Context, audioPath string) (voice.Result, error)
}

// Store 命令用到的数据访问
type Store interface {
	EnsureDefaultCategories(ctx context.Context) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, cat *models.Category) error
	ListExpenses(ctx context.Context, f database.ExpenseFilter) ([]models.Expense, int64, error)
}

// StatsProvider /stats 命令的数据来源
type StatsProvider interface {
	Summary(ctx context.Context, owner string, w stats.Window, target *time.Time) (stats.SummaryReport, error)
	CategoryBreakdown(ctx context.Context, owner string, w stats.Window) (stats.CategoryReport, error)
}

// Deps 调度器依赖，Voice 与 Alerter 可为空
type Deps struct {
	Messenger Messenger
	Extractor Extractor
	Voice     VoiceProcessor
	Machine   *approval.Machine
	Store     Store
	Stats     StatsProvider
	Alerter   *service.Alerter
}

// Options 调度器配置
type Options struct {
	AllowedChatIDs []int64 // 为空表示不限制
	HomeCurrency   string
	RecentLimit    int
}

// Dispatcher 按更新类型分发处理
// 出站消息发送失败只记录日志，处理结果通过聊天消息告知用户
type Dispatcher struct {
	tg           Messenger
	extractor    Extractor
	voice        VoiceProcessor
	machine      *approval.Machine
	store        Store
	stats        StatsProvider
	alerter      *service.Alerter
	allowed      map[int64]struct{}
	homeCurrency string
	recentLimit  int
	log          zerolog.Logger
	now          func() time.Time
}

// NewDispatcher 创建调度器
func NewDispatcher(deps Deps, opts Options, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		tg:           deps.Messenger,
		extractor:    deps.Extractor,
		voice:        deps.Voice,
		machine:      deps.Machine,
		store:        deps.Store,
		stats:        deps.Stats,
		alerter:      deps.Alerter,
		homeCurrency: opts.HomeCurrency,
		recentLimit:  opts.RecentLimit,
		log:          log,
		now:          time.Now,
	}
	if d.homeCurrency == "" {
		d.homeCurrency = "MDL"
	}
	if d.recentLimit <= 0 {
		d.recentLimit = 10
	}
	if len(opts.AllowedChatIDs) > 0 {
		d.allowed = make(map[int64]struct{}, len(opts.AllowedChatIDs))
		for _, id := range opts.AllowedChatIDs {
			d.allowed[id] = struct{}{}
		}
	}
	return d
}

// OwnerID Telegram 会话对应的所有者标识
func OwnerID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (d *Dispatcher) isAllowed(chatID int64) bool {
	if d.allowed == nil {
		return true
	}
	_, ok := d.allowed[chatID]
	return ok
}

// Handle 处理一条更新
func (d *Dispatcher) Handle(ctx context.Context, u Update) {
	log := d.log.With().Int64("chat_id", u.chat()).Logger()

	if ign, ok := u.(Ignorable); ok {
		log.Debug().Str("reason", ign.Reason).Msg("忽略更新")
		return
	}
	if !d.isAllowed(u.chat()) {
		log.Warn().Msg("会话不在白名单内")
		if cb, ok := u.(CallbackClick); ok {
			d.answer(ctx, cb.ID, msgForbidden)
			return
		}
		d.send(ctx, u.chat(), msgForbidden, nil)
		return
	}

	switch v := u.(type) {
	case CommandMessage:
		d.handleCommand(ctx, v)
	case TextMessage:
		d.handleText(ctx, v)
	case VoiceMessage:
		d.handleVoice(ctx, v)
	case CallbackClick:
		d.handleCallback(ctx, v)
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, markup *service.InlineKeyboardMarkup) int64 {
	id, err := d.tg.SendMessage(ctx, service.OutgoingMessage{
		ChatID:      strconv.FormatInt(chatID, 10),
		Text:        text,
		ParseMode:   service.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("发送 Telegram 消息失败")
		return 0
	}
	return id
}

func (d *Dispatcher) edit(ctx context.Context, chatID, messageID int64, text string, markup *service.InlineKeyboardMarkup) error {
	err := d.tg.EditMessageText(ctx, service.EditMessage{
		ChatID:      strconv.FormatInt(chatID, 10),
		MessageID:   messageID,
		Text:        text,
		ParseMode:   service.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Int64("message_id", messageID).Msg("编辑 Telegram 消息失败")
	}
	return err
}

// replace 将进度消息改写为结果，无法改写时发送新消息
func (d *Dispatcher) replace(ctx context.Context, chatID, messageID int64, text string, markup *service.InlineKeyboardMarkup) {
	if messageID != 0 && d.edit(ctx, chatID, messageID, text, markup) == nil {
		return
	}
	d.send(ctx, chatID, text, markup)
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string) {
	err := d.tg.AnswerCallbackQuery(ctx, service.CallbackAnswer{CallbackQueryID: callbackID, Text: text})
	if err != nil {
		d.log.Warn().Err(err).Str("callback_id", callbackID).Msg("应答回调失败")
	}
}

func (d *Dispatcher) report(ctx context.Context, event string, err error, chatID int64) {
	if d.alerter == nil {
		d.log.Error().Err(err).Str("event", event).Int64("chat_id", chatID).Msg("处理失败")
		return
	}
	d.alerter.Report(ctx, event, err, map[string]interface{}{"chat_id": chatID})
}

func (d *Dispatcher) categoryNames(ctx context.Context) []string {
	list, err := d.store.ListCategories(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("读取类别失败")
		return nil
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	return names
}

func (d *Dispatcher) handleCommand(ctx context.Context, m CommandMessage) {
	owner := OwnerID(m.ChatID)
	switch m.Command {
	case "start":
		if err := d.store.EnsureDefaultCategories(ctx); err != nil {
			d.log.Warn().Err(err).Msg("初始化默认类别失败")
		}
		list, _ := d.store.ListCategories(ctx)
		d.send(ctx, m.ChatID, welcomeText(list), nil)

	case "help":
		d.send(ctx, m.ChatID, helpText, nil)

	case "categories":
		list, err := d.store.ListCategories(ctx)
		if err != nil {
			d.report(ctx, "list_categories", err, m.ChatID)
			d.send(ctx, m.ChatID, msgFailed, nil)
			return
		}
		d.send(ctx, m.ChatID, categoriesText(list), nil)

	case "expenses":
		list, _, err := d.store.ListExpenses(ctx, database.ExpenseFilter{
			OwnerID: owner,
			SortBy:  "created_at",
			Order:   "desc",
			Limit:   d.recentLimit,
		})
		if err != nil {
			d.report(ctx, "list_expenses", err, m.ChatID)
			d.send(ctx, m.ChatID, msgFailed, nil)
			return
		}
		d.send(ctx, m.ChatID, expensesText(list, d.homeCurrency), nil)

	case "stats":
		d.handleStats(ctx, m.ChatID, owner)

	case "add_category":
		d.handleAddCategory(ctx, m)

	default:
		d.send(ctx, m.ChatID, msgUnknownCommand, nil)
	}
}

func (d *Dispatcher) handleStats(ctx context.Context, chatID int64, owner string) {
	today := stats.Day(d.now())
	summary, err := d.stats.Summary(ctx, owner, stats.Window{}, &today)
	if err != nil {
		d.report(ctx, "stats_summary", err, chatID)
		d.send(ctx, chatID, msgFailed, nil)
		return
	}
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	breakdown, err := d.stats.CategoryBreakdown(ctx, owner, stats.Between(monthStart, monthStart.AddDate(0, 1, -1)))
	if err != nil {
		d.report(ctx, "stats_categories", err, chatID)
		d.send(ctx, chatID, msgFailed, nil)
		return
	}
	d.send(ctx, chatID, statsText(summary, breakdown, d.homeCurrency), nil)
}

func (d *Dispatcher) handleAddCategory(ctx context.Context, m CommandMessage) {
	if m.Args == "" {
		d.send(ctx, m.ChatID, msgAddCategoryHelp, nil)
		return
	}
	sug := extraction.SuggestCategory(m.Args)
	cat := &models.Category{Name: m.Args, Color: sug.Color, Icon: sug.Icon}
	err := d.store.CreateCategory(ctx, cat)
	switch {
	case errors.Is(err, database.ErrCategoryExists):
		d.send(ctx, m.ChatID, msgCategoryExists, nil)
	case errors.Is(err, database.ErrEmptyName):
		d.send(ctx, m.ChatID, msgAddCategoryHelp, nil)
	case err != nil:
		d.report(ctx, "create_category", err, m.ChatID)
		d.send(ctx, m.ChatID, msgFailed, nil)
	default:
		d.send(ctx, m.ChatID, categoryAddedText(cat), nil)
	}
}

// ingest 识别文本并发出确认提示
func (d *Dispatcher) ingest(ctx context.Context, chatID, progressID int64, p approval.Proposal, text, transcript string) {
	d.machine.Sweep(ctx)

	p.Result = d.extractor.Extract(ctx, text, d.categoryNames(ctx))
	if p.Result.Candidate.Amount == nil {
		d.replace(ctx, chatID, progressID, msgNoAmount, nil)
		return
	}

	entry, err := d.machine.Propose(ctx, p)
	if err != nil {
		d.report(ctx, "propose_expense", err, chatID)
		d.replace(ctx, chatID, progressID, msgFailed, nil)
		return
	}
	d.log.Info().
		Int64("chat_id", chatID).
		Str("pending_id", entry.ID).
		Str("provenance", entry.Provenance).
		Msg("等待确认")
	d.replace(ctx, chatID, progressID, confirmationText(entry.Candidate, transcript), confirmationKeyboard(entry.ID))
}

func (d *Dispatcher) handleText(ctx context.Context, m TextMessage) {
	progress := d.send(ctx, m.ChatID, msgProcessingText, nil)
	d.ingest(ctx, m.ChatID, progress, approval.Proposal{
		ChatID:  m.ChatID,
		OwnerID: OwnerID(m.ChatID),
		Source:  models.SourceText,
		RawText: m.Text,
	}, m.Text, "")
}

func (d *Dispatcher) handleVoice(ctx context.Context, m VoiceMessage) {
	if d.voice == nil {
		d.send(ctx, m.ChatID, msgVoiceFailed, nil)
		return
	}
	progress := d.send(ctx, m.ChatID, msgProcessingVoice, nil)

	res, err := d.transcribe(ctx, m.FileID)
	if err == nil && res.Text() == "" {
		err = service.ErrTranscription
	}
	if err != nil {
		d.report(ctx, "voice_processing", err, m.ChatID)
		d.replace(ctx, m.ChatID, progress, msgVoiceFailed, nil)
		return
	}

	d.ingest(ctx, m.ChatID, progress, approval.Proposal{
		ChatID:        m.ChatID,
		OwnerID:       OwnerID(m.ChatID),
		Source:        models.SourceVoice,
		RawText:       res.RawText,
		CorrectedText: res.CorrectedText,
	}, res.Text(), res.Text())
}

// transcribe 下载语音到临时文件并转写，临时文件在返回前删除
func (d *Dispatcher) transcribe(ctx context.Context, fileID string) (voice.Result, error) {
	f, err := os.CreateTemp("", "voice-*.ogg")
	if err != nil {
		return voice.Result{}, err
	}
	path := f.Name()
	defer os.Remove(path)

	err = d.tg.DownloadFile(ctx, fileID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return voice.Result{}, err
	}
	return d.voice.Process(ctx, path)
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb CallbackClick) {
	action, id, err := ParseCallback(cb.Data)
	if err != nil {
		d.answer(ctx, cb.ID, toastInvalid)
		return
	}

	switch action {
	case ActionApprove:
		d.approve(ctx, cb, id)
	case ActionReject:
		d.reject(ctx, cb, id)
	}
}

func (d *Dispatcher) approve(ctx context.Context, cb CallbackClick, id string) {
	// 只允许在创建记录的会话中取出
	exp, entry, err := d.machine.Approve(ctx, id, approval.Overrides{ChatID: cb.ChatID})
	switch {
	case errors.Is(err, approval.ErrNotAvailable):
		d.unavailable(ctx, cb)
	case errors.Is(err, extraction.ErrNoAmount):
		d.answer(ctx, cb.ID, toastRejected)
		d.edit(ctx, cb.ChatID, cb.MessageID, msgNoAmount, nil)
	case err != nil:
		// 记录已放回，按钮仍可重试
		d.report(ctx, "approve_expense", err, cb.ChatID)
		d.answer(ctx, cb.ID, "❌ Eroare la salvare")
	default:
		category := ""
		if exp.CategoryID != nil {
			category = entry.Candidate.Category
		}
		d.answer(ctx, cb.ID, toastApproved)
		d.edit(ctx, cb.ChatID, cb.MessageID, savedText(exp, category), nil)
	}
}

func (d *Dispatcher) reject(ctx context.Context, cb CallbackClick, id string) {
	_, err := d.machine.Reject(ctx, id, cb.ChatID)
	switch {
	case errors.Is(err, approval.ErrNotAvailable):
		d.unavailable(ctx, cb)
	case err != nil:
		d.report(ctx, "reject_expense", err, cb.ChatID)
		d.answer(ctx, cb.ID, "❌ Eroare")
	default:
		d.answer(ctx, cb.ID, toastRejected)
		d.edit(ctx, cb.ChatID, cb.MessageID, msgRejected, nil)
	}
}

// unavailable 回应输掉竞争或已过期的回调；原消息可能已是胜者的结果，不能改写
func (d *Dispatcher) unavailable(ctx context.Context, cb CallbackClick) {
	d.answer(ctx, cb.ID, toastExpired)
	d.send(ctx, cb.ChatID, msgExpired, nil)
}
