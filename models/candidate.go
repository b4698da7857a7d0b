package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// CandidateExpense 待确认的识别结果
type CandidateExpense struct {
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Currency     string           `json:"currency"`
	Vendor       string           `json:"vendor"`
	PurchaseDate string           `json:"purchase_date"`
	Category     string           `json:"category,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Items        []LineItem       `json:"items,omitempty"`
	Confidence   *float64         `json:"confidence,omitempty"`
}

// Date 解析购买日期，为空或格式错误时返回 fallback 所在日
func (c CandidateExpense) Date(fallback time.Time) time.Time {
	if c.PurchaseDate != "" {
		if t, err := time.ParseInLocation(DateLayout, c.PurchaseDate, fallback.Location()); err == nil {
			return t
		}
	}
	y, m, d := fallback.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, fallback.Location())
}

// Clone 深拷贝，避免共享切片与指针
func (c CandidateExpense) Clone() CandidateExpense {
	out := c
	if c.Amount != nil {
		a := *c.Amount
		out.Amount = &a
	}
	if c.Confidence != nil {
		v := *c.Confidence
		out.Confidence = &v
	}
	if c.Items != nil {
		out.Items = append([]LineItem(nil), c.Items...)
	}
	return out
}
