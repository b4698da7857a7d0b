// Package approval 管理待确认消费的确认与取消
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensebot/extraction"
	"expensebot/models"
	"expensebot/pending"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotAvailable 记录已被处理或已过期
var ErrNotAvailable = errors.New("pending expense no longer available")

// ExpenseWriter 消费记录持久化
type ExpenseWriter interface {
	CreateExpense(ctx context.Context, e *models.Expense) error
	FindCategory(ctx context.Context, id uint) (*models.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*models.Category, error)
}

// CategoryNotFound 判断 writer 返回的错误是否表示类别不存在
type CategoryNotFound func(error) bool

// Proposal 新的待确认消费
type Proposal struct {
	ChatID        int64
	OwnerID       string
	Source        string
	RawText       string
	CorrectedText string
	Result        extraction.Result
}

// Overrides 确认时覆盖的字段
type Overrides struct {
	CategoryID    *uint
	ClearCategory bool
	ChatID        int64 // 非 0 时只允许该会话确认
}

// Options 状态机配置
type Options struct {
	HomeCurrency string
	Confidence   float64 // 规则解析与人工确认的置信度
	IsNotFound   CategoryNotFound
}

// Machine 待确认消费状态机：Proposed → Approved / Rejected / Expired
type Machine struct {
	store        pending.Store
	writer       ExpenseWriter
	homeCurrency string
	confidence   float64
	isNotFound   CategoryNotFound
	log          zerolog.Logger
	now          func() time.Time
}

// New 创建状态机
func New(store pending.Store, writer ExpenseWriter, opts Options, log zerolog.Logger) *Machine {
	m := &Machine{
		store:        store,
		writer:       writer,
		homeCurrency: strings.ToUpper(opts.HomeCurrency),
		confidence:   opts.Confidence,
		isNotFound:   opts.IsNotFound,
		log:          log,
		now:          time.Now,
	}
	if m.homeCurrency == "" {
		m.homeCurrency = "MDL"
	}
	if m.confidence <= 0 {
		m.confidence = extraction.HeuristicConfidence
	}
	if m.isNotFound == nil {
		m.isNotFound = func(error) bool { return false }
	}
	return m
}

// Propose 保存识别结果，返回带关联 ID 的记录
func (m *Machine) Propose(ctx context.Context, p Proposal) (pending.Entry, error) {
	cand := p.Result.Candidate.Clone()
	if cand.Currency == "" {
		cand.Currency = m.homeCurrency
	}
	return m.store.Put(ctx, pending.Entry{
		ChatID:        p.ChatID,
		OwnerID:       p.OwnerID,
		Source:        p.Source,
		RawText:       p.RawText,
		CorrectedText: p.CorrectedText,
		Candidate:     cand,
		Provenance:    string(p.Result.Provenance),
	})
}

// Preview 读取记录但不改变状态
func (m *Machine) Preview(ctx context.Context, id string) (pending.Entry, error) {
	e, err := m.store.Get(ctx, id)
	if errors.Is(err, pending.ErrNotFound) {
		return pending.Entry{}, ErrNotAvailable
	}
	return e, err
}

// Approve 确认记录并保存为消费记录
// 并发确认同一 ID 时只有第一个成功，其余返回 ErrNotAvailable
// 类别解析失败时不取出记录，记录保持可确认
// 取出后保存失败会放回记录：放回前并发的取消已得到 ErrNotAvailable，
// 放回后记录仍可再次确认或取消，直到过期
func (m *Machine) Approve(ctx context.Context, id string, ov Overrides) (*models.Expense, pending.Entry, error) {
	peek, err := m.Preview(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, pending.Entry{}, err
	}
	if peek.Candidate.Amount == nil {
		// 没有金额的记录无法确认，直接丢弃
		entry, err := m.take(ctx, id, ov.ChatID)
		if err != nil {
			return nil, pending.Entry{}, err
		}
		return nil, entry, extraction.ErrNoAmount
	}
	if ov.ChatID != 0 && peek.ChatID != ov.ChatID {
		m.log.Warn().Str("pending_id", id).Int64("chat_id", ov.ChatID).Msg("回调会话与记录不符")
		return nil, pending.Entry{}, ErrNotAvailable
	}

	// 记录内容写入后不再变化，可以先按预览构造
	expense, err := m.build(ctx, peek, ov)
	if err != nil {
		return nil, peek, err
	}

	entry, err := m.take(ctx, id, ov.ChatID)
	if err != nil {
		return nil, pending.Entry{}, err
	}
	if err := m.writer.CreateExpense(ctx, expense); err != nil {
		if _, putErr := m.store.Put(ctx, entry); putErr != nil {
			m.log.Warn().Err(putErr).Str("pending_id", id).Msg("恢复待确认记录失败")
		}
		return nil, entry, err
	}

	m.log.Info().
		Str("pending_id", id).
		Str("expense_id", expense.ID).
		Str("provenance", entry.Provenance).
		Msg("消费已确认")
	return expense, entry, nil
}

// Reject 原子地取出并丢弃记录，chatID 非 0 时只允许该会话取消
func (m *Machine) Reject(ctx context.Context, id string, chatID int64) (pending.Entry, error) {
	entry, err := m.take(ctx, id, chatID)
	if err != nil {
		return pending.Entry{}, err
	}
	m.log.Info().Str("pending_id", id).Msg("消费已取消")
	return entry, nil
}

// Sweep 清理过期记录
func (m *Machine) Sweep(ctx context.Context) int {
	return m.store.SweepExpired(ctx)
}

func (m *Machine) take(ctx context.Context, id string, chatID int64) (pending.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return pending.Entry{}, ErrNotAvailable
	}
	entry, err := m.store.TakeIf(ctx, id, pending.SameChat(chatID))
	switch {
	case errors.Is(err, pending.ErrNotFound):
		return pending.Entry{}, ErrNotAvailable
	case errors.Is(err, pending.ErrMismatch):
		m.log.Warn().Str("pending_id", id).Int64("chat_id", chatID).Msg("回调会话与记录不符")
		return pending.Entry{}, ErrNotAvailable
	}
	if err != nil {
		return pending.Entry{}, fmt.Errorf("读取待确认记录失败: %w", err)
	}
	return entry, nil
}

func (m *Machine) resolveCategory(ctx context.Context, name string, ov Overrides) (*uint, error) {
	switch {
	case ov.ClearCategory:
		return nil, nil
	case ov.CategoryID != nil:
		cat, err := m.writer.FindCategory(ctx, *ov.CategoryID)
		if err != nil {
			return nil, err
		}
		return &cat.ID, nil
	case strings.TrimSpace(name) != "":
		cat, err := m.writer.FindCategoryByName(ctx, name)
		if err != nil {
			if m.isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return &cat.ID, nil
	}
	return nil, nil
}

func (m *Machine) build(ctx context.Context, entry pending.Entry, ov Overrides) (*models.Expense, error) {
	cand := entry.Candidate
	categoryID, err := m.resolveCategory(ctx, cand.Category, ov)
	if err != nil {
		return nil, err
	}

	now := m.now()
	amount := cand.Amount.Round(2)
	vendor := strings.TrimSpace(cand.Vendor)
	if vendor == "" {
		vendor = models.DefaultVendor
	}
	currency := strings.ToUpper(strings.TrimSpace(cand.Currency))
	if currency == "" {
		currency = m.homeCurrency
	}
	confidence := m.confidence
	if entry.Provenance == string(extraction.ProvenanceAI) && cand.Confidence != nil {
		confidence = *cand.Confidence
	}

	notes := cand.Notes
	if notes == "" {
		notes = "Adăugată manual la " + now.Format(time.RFC3339)
	}
	items := cand.Items
	if len(items) == 0 {
		items = []models.LineItem{{
			Name:      vendor,
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: amount,
			Total:     amount,
		}}
	}

	source := entry.Source
	if source == "" {
		source = models.SourceManual
	}

	meta := models.Metadata{
		Notes:      notes,
		Items:      items,
		RawText:    entry.RawText,
		Provenance: entry.Provenance,
	}
	if entry.CorrectedText != "" && entry.CorrectedText != entry.RawText {
		meta.Transcript = entry.CorrectedText
	}

	return &models.Expense{
		OwnerID:      entry.OwnerID,
		Source:       source,
		Amount:       amount,
		Currency:     currency,
		Vendor:       vendor,
		PurchaseDate: cand.Date(now),
		CategoryID:   categoryID,
		AIConfidence: confidence,
		Metadata:     meta,
	}, nil
}
