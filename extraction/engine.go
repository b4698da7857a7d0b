// Package extraction 将自由文本解析为待确认的消费记录
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensebot/models"
	"expensebot/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Provenance 解析路径
type Provenance string

const (
	ProvenanceAI        Provenance = "ai-assisted"
	ProvenanceHeuristic Provenance = "heuristic"
)

// ErrNoAmount 未识别出金额
var ErrNoAmount = errors.New("amount not detected")

// 默认置信度
const (
	HeuristicConfidence = 0.72
	AIConfidence        = 0.9
)

// DefaultCategoryNames 未提供类别列表时提示模型使用
var DefaultCategoryNames = []string{"Groceries", "Transport", "Restaurant", "Health", "Entertainment"}

// Result 解析结果
type Result struct {
	Candidate      models.CandidateExpense `json:"data"`
	Provenance     Provenance              `json:"source"`
	Raw            string                  `json:"-"`
	FallbackReason string                  `json:"-"` // 走规则解析的原因，AI 成功时为空
}

// Engine 解析引擎：优先调用语言模型，失败时退回规则解析
type Engine struct {
	completer   service.Completer
	heuristic   *Heuristic
	temperature float64
	log         zerolog.Logger
	now         func() time.Time
}

// NewEngine 创建解析引擎，completer 为空时只走规则解析
func NewEngine(completer service.Completer, homeCurrency string, temperature float64, log zerolog.Logger) *Engine {
	h := NewHeuristic(homeCurrency)
	return &Engine{
		completer:   completer,
		heuristic:   h,
		temperature: temperature,
		log:         log,
		now:         time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.heuristic.now = now
}

// Extract 解析文本，并将类别映射到 categories 中的名称
func (e *Engine) Extract(ctx context.Context, text string, categories []string) Result {
	var res Result
	if e.completer == nil {
		res = e.fallback(text, "no completer configured", "")
	} else {
		cand, raw, err := e.extractAI(ctx, text, categories)
		if err != nil {
			e.log.Warn().Err(err).Msg("语言模型解析失败，使用规则解析")
			res = e.fallback(text, err.Error(), raw)
		} else {
			res = Result{Candidate: cand, Provenance: ProvenanceAI, Raw: raw}
		}
	}

	res.Candidate.Category = MatchCategory(res.Candidate.Category, res.Candidate.Vendor+" "+text, categories)
	return res
}

func (e *Engine) fallback(text, reason, raw string) Result {
	return Result{
		Candidate:      e.heuristic.Parse(text),
		Provenance:     ProvenanceHeuristic,
		Raw:            raw,
		FallbackReason: reason,
	}
}

func (e *Engine) systemPrompt(categories []string) string {
	names := categories
	if len(names) == 0 {
		names = DefaultCategoryNames
	}
	today := e.now().Format(models.DateLayout)
	return fmt.Sprintf(`You are an AI that extracts structured expense data from Romanian messages.

CRITICAL RULES FOR "vendor" FIELD:
1. Extract the ACTUAL ITEM/PRODUCT or STORE NAME.
   - "Am cumpărat pâine 15 lei" → vendor: "Pâine"
   - "Am fost la Linella 50 lei" → vendor: "Linella"
   - "Am cheltuit 15 lei pentru o cafea" → vendor: "Cafea"
   - "Taxi 30 lei" → vendor: "Taxi"
2. NEVER use the leading Romanian verb phrase as vendor: "Am cumpărat", "Am fost", "Am cheltuit", "Plătit" are WRONG.

CATEGORY MATCHING:
Available categories: %s
- Pick the category strictly from the list above.
- If nothing fits, leave "category" empty.

OUTPUT FORMAT:
Respond ONLY with JSON: {"data":{"amount":number,"currency":"ISO code","vendor":"string","purchase_date":"YYYY-MM-DD","category":"string","notes":"string","items":[{"name":"string","qty":number,"price":number,"total":number}],"confidence":0.0-1.0}}
Dates must be ISO (YYYY-MM-DD). Today is %s; use it when the message has no date.
Default currency when none is mentioned: %s.`, strings.Join(names, ", "), today, e.heuristic.homeCurrency)
}

type aiItem struct {
	Name     string          `json:"name"`
	Quantity flexibleDecimal `json:"qty"`
	Price    flexibleDecimal `json:"price"`
	Total    flexibleDecimal `json:"total"`
}

type aiPayload struct {
	Amount       flexibleDecimal `json:"amount"`
	Currency     string          `json:"currency"`
	Vendor       string          `json:"vendor"`
	PurchaseDate string          `json:"purchase_date"`
	Category     string          `json:"category"`
	Notes        string          `json:"notes"`
	Items        []aiItem        `json:"items"`
	Confidence   *float64        `json:"confidence"`
}

func (e *Engine) extractAI(ctx context.Context, text string, categories []string) (models.CandidateExpense, string, error) {
	raw, err := e.completer.Complete(ctx, service.ChatRequest{
		System:      e.systemPrompt(categories),
		Prompt:      text,
		Temperature: e.temperature,
		JSON:        true,
	})
	if err != nil {
		return models.CandidateExpense{}, "", fmt.Errorf("completion: %w", err)
	}
	p, err := parseAIPayload(raw)
	if err != nil {
		return models.CandidateExpense{}, raw, err
	}
	cand, err := e.toCandidate(p, text)
	return cand, raw, err
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return strings.TrimSpace(s)
}

func parseAIPayload(raw string) (aiPayload, error) {
	cleaned := cleanModelJSON(raw)
	var wrapper struct {
		Data *aiPayload `json:"data"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
		return aiPayload{}, fmt.Errorf("模型返回的不是合法 JSON: %w", err)
	}
	if wrapper.Data != nil {
		return *wrapper.Data, nil
	}
	var flat aiPayload
	if err := json.Unmarshal([]byte(cleaned), &flat); err != nil {
		return aiPayload{}, fmt.Errorf("模型返回的不是合法 JSON: %w", err)
	}
	return flat, nil
}

func (e *Engine) toCandidate(p aiPayload, text string) (models.CandidateExpense, error) {
	if p.Amount.Decimal == nil {
		return models.CandidateExpense{}, ErrNoAmount
	}
	if p.Amount.Decimal.IsNegative() {
		return models.CandidateExpense{}, errors.New("模型返回负数金额")
	}
	vendor := strings.TrimSpace(p.Vendor)
	if vendor == "" || IsStopWord(vendor) {
		return models.CandidateExpense{}, fmt.Errorf("模型返回的商家无效: %q", p.Vendor)
	}

	cand := models.CandidateExpense{
		Amount:   p.Amount.Decimal,
		Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
		Vendor:   vendor,
		Category: strings.TrimSpace(p.Category),
		Notes:    strings.TrimSpace(p.Notes),
	}
	if len(cand.Currency) != 3 {
		cand.Currency = e.heuristic.homeCurrency
	}
	if cand.Notes == "" {
		cand.Notes = strings.TrimSpace(text)
	}
	if _, err := time.Parse(models.DateLayout, p.PurchaseDate); err == nil {
		cand.PurchaseDate = p.PurchaseDate
	} else {
		cand.PurchaseDate = e.now().Format(models.DateLayout)
	}

	confidence := AIConfidence
	if p.Confidence != nil && *p.Confidence > 0 && *p.Confidence <= 1 {
		confidence = *p.Confidence
	}
	cand.Confidence = &confidence

	for _, it := range p.Items {
		if item, ok := normalizeItem(it); ok {
			cand.Items = append(cand.Items, item)
		}
	}
	return cand, nil
}

// normalizeItem 补齐数量、单价与小计
func normalizeItem(it aiItem) (models.LineItem, bool) {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return models.LineItem{}, false
	}
	qty := decimal.NewFromInt(1)
	if it.Quantity.Decimal != nil && it.Quantity.Decimal.IsPositive() {
		qty = *it.Quantity.Decimal
	}
	var price, total decimal.Decimal
	switch {
	case it.Price.Decimal != nil && it.Total.Decimal != nil:
		price, total = *it.Price.Decimal, *it.Total.Decimal
	case it.Price.Decimal != nil:
		price = *it.Price.Decimal
		total = price.Mul(qty)
	case it.Total.Decimal != nil:
		total = *it.Total.Decimal
		price = total.Div(qty)
	default:
		return models.LineItem{}, false
	}
	return models.LineItem{
		Name:      name,
		Quantity:  qty,
		UnitPrice: price.Round(2),
		Total:     total.Round(2),
	}, true
}

// flexibleDecimal 兼容数字与字符串形式的金额，如 "12,50"
type flexibleDecimal struct {
	Decimal *decimal.Decimal
}

func (f *flexibleDecimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("无法解析数值 %q: %w", s, err)
	}
	f.Decimal = &d
	return nil
}
