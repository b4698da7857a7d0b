package stats

import (
	"fmt"
	"time"

	"expensebot/models"
)

// 未指定区间时的查询边界
var (
	minDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Day 取日历日（UTC 零点）
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay 解析 YYYY-MM-DD
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式错误，应为 YYYY-MM-DD: %s", s)
	}
	return t, nil
}

// Window 日期区间，两端均包含，nil 表示不限
type Window struct {
	From *time.Time
	To   *time.Time
}

// NewWindow 从可选日期构造区间
func NewWindow(from, to *time.Time) Window {
	w := Window{}
	if from != nil {
		d := Day(*from)
		w.From = &d
	}
	if to != nil {
		d := Day(*to)
		w.To = &d
	}
	return w
}

// Between 构造闭区间
func Between(from, to time.Time) Window {
	return NewWindow(&from, &to)
}

// Contains 判断某日是否在区间内
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	if w.From != nil && d.Before(*w.From) {
		return false
	}
	if w.To != nil && d.After(*w.To) {
		return false
	}
	return true
}

// Bounds 返回用于查询的起止日期
func (w Window) Bounds() (time.Time, time.Time) {
	from, to := minDate, maxDate
	if w.From != nil {
		from = *w.From
	}
	if w.To != nil {
		to = *w.To
	}
	return from, to
}

// Label 区间描述：from → to、单个日期或 all
func (w Window) Label() string {
	switch {
	case w.From != nil && w.To != nil:
		return w.From.Format(models.DateLayout) + " → " + w.To.Format(models.DateLayout)
	case w.From != nil:
		return w.From.Format(models.DateLayout)
	case w.To != nil:
		return w.To.Format(models.DateLayout)
	default:
		return "all"
	}
}

func (w Window) filter(expenses []models.Expense) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if w.Contains(e.PurchaseDate) {
			out = append(out, e)
		}
	}
	return out
}

// resolveTarget 锚定日期：target → to → from → today
func resolveTarget(target *time.Time, w Window, today time.Time) time.Time {
	switch {
	case target != nil:
		return Day(*target)
	case w.To != nil:
		return *w.To
	case w.From != nil:
		return *w.From
	default:
		return Day(today)
	}
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, -1)
}

// startOfWeek ISO 周，周一开始
func startOfWeek(t time.Time) time.Time {
	diff := (int(t.Weekday()) + 6) % 7
	return Day(t).AddDate(0, 0, -diff)
}
