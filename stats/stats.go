// Package stats 消费统计：类别占比、商家排行、趋势与汇总
// 所有函数只依赖传入的消费记录，金额在输出时才保留两位小数
package stats

import (
	"sort"
	"time"

	"expensebot/models"

	"github.com/shopspring/decimal"
)

// 默认值与范围
const (
	DefaultVendorLimit = 5
	DefaultTrendRange  = 10
	MinTrendRange      = 2
	MaxTrendRange      = 90
	DefaultTrendType   = "daily"
	UnnamedVendor      = "Fără denumire"
)

// 月度对比趋势
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

var hundred = decimal.NewFromInt(100)

func sum(expenses []models.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// percentage 占比，保留一位小数；总额为 0 时返回 0
func percentage(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Mul(hundred).Div(total).Round(1).InexactFloat64()
}

// CategoryTotal 单个类别汇总
type CategoryTotal struct {
	CategoryID *uint           `json:"category_id"`
	Name       string          `json:"category_name"`
	Color      string          `json:"color"`
	Icon       string          `json:"icon"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// CategoryReport 类别占比
type CategoryReport struct {
	Period     string          `json:"period"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Categories []CategoryTotal `json:"categories"`
}

// CategoryBreakdown 按类别分组，未分类归入占位组
func CategoryBreakdown(expenses []models.Expense, w Window) CategoryReport {
	list := w.filter(expenses)
	grand := sum(list)

	type bucket struct {
		CategoryTotal
		raw decimal.Decimal
	}
	buckets := map[uint]*bucket{}
	var uncategorized *bucket
	var order []*bucket

	for _, e := range list {
		var b *bucket
		if e.CategoryID == nil {
			if uncategorized == nil {
				uncategorized = &bucket{CategoryTotal: CategoryTotal{
					Name:  models.UncategorizedName,
					Color: models.UncategorizedColor,
					Icon:  models.UncategorizedIcon,
				}}
				order = append(order, uncategorized)
			}
			b = uncategorized
		} else {
			b = buckets[*e.CategoryID]
			if b == nil {
				id := *e.CategoryID
				b = &bucket{CategoryTotal: CategoryTotal{
					CategoryID: &id,
					Name:       models.UncategorizedName,
					Color:      models.UncategorizedColor,
					Icon:       models.UncategorizedIcon,
				}}
				if e.Category != nil {
					b.Name, b.Color, b.Icon = e.Category.Name, e.Category.Color, e.Category.Icon
				}
				buckets[id] = b
				order = append(order, b)
			}
		}
		b.raw = b.raw.Add(e.Amount)
		b.Count++
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, b := range order {
		ct := b.CategoryTotal
		ct.Total = b.raw.Round(2)
		ct.Percentage = percentage(b.raw, grand)
		out = append(out, ct)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})

	return CategoryReport{
		Period:     w.Label(),
		GrandTotal: grand.Round(2),
		Categories: out,
	}
}

// VendorTotal 单个商家汇总
type VendorTotal struct {
	Vendor     string          `json:"vendor"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// VendorReport 商家排行
type VendorReport struct {
	Period     string          `json:"period"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	TopVendors []VendorTotal   `json:"top_vendors"`
}

// VendorRanking 按商家分组并取前 limit 名，limit <= 0 使用默认值
func VendorRanking(expenses []models.Expense, w Window, limit int) VendorReport {
	if limit <= 0 {
		limit = DefaultVendorLimit
	}
	list := w.filter(expenses)
	grand := sum(list)

	totals := map[string]decimal.Decimal{}
	counts := map[string]int{}
	var order []string
	for _, e := range list {
		key := e.Vendor
		if key == "" {
			key = UnnamedVendor
		}
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] = totals[key].Add(e.Amount)
		counts[key]++
	}

	out := make([]VendorTotal, 0, len(order))
	for _, v := range order {
		out = append(out, VendorTotal{
			Vendor:     v,
			Total:      totals[v].Round(2),
			Count:      counts[v],
			Percentage: percentage(totals[v], grand),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	return VendorReport{
		Period:     w.Label(),
		GrandTotal: grand.Round(2),
		TopVendors: out,
	}
}

// TrendQuery 趋势参数
type TrendQuery struct {
	Type   string
	Range  *int // nil 使用默认值
	Target *time.Time
	Window Window
}

// TrendPoint 单日数据
type TrendPoint struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// TrendReport 趋势
type TrendReport struct {
	Type  string       `json:"type"`
	Range int          `json:"range"`
	Data  []TrendPoint `json:"data"`
}

// ClampRange 将天数限制在 [2, 90]
func ClampRange(r *int) int {
	n := DefaultTrendRange
	if r != nil {
		n = *r
	}
	if n < MinTrendRange {
		return MinTrendRange
	}
	if n > MaxTrendRange {
		return MaxTrendRange
	}
	return n
}

// trendSpan 趋势的起始日与天数
func trendSpan(q TrendQuery, today time.Time) (time.Time, int) {
	n := ClampRange(q.Range)
	target := resolveTarget(q.Target, q.Window, today)
	start := target.AddDate(0, 0, -(n - 1))
	if q.Window.From != nil {
		start = *q.Window.From
	}
	return start, n
}

// Trend 从起始日逐日统计，超过区间上限时提前结束
func Trend(expenses []models.Expense, q TrendQuery, today time.Time) TrendReport {
	start, n := trendSpan(q, today)

	byDay := map[time.Time][]models.Expense{}
	for _, e := range expenses {
		d := Day(e.PurchaseDate)
		byDay[d] = append(byDay[d], e)
	}

	data := make([]TrendPoint, 0, n)
	for i := 0; i < n; i++ {
		day := start.AddDate(0, 0, i)
		if q.Window.To != nil && day.After(*q.Window.To) {
			break
		}
		list := byDay[day]
		data = append(data, TrendPoint{
			Date:  day.Format(models.DateLayout),
			Total: sum(list).Round(2),
			Count: len(list),
		})
	}

	t := q.Type
	if t == "" {
		t = DefaultTrendType
	}
	return TrendReport{Type: t, Range: n, Data: data}
}

// PeriodTotal 区间合计
type PeriodTotal struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// MonthTotal 月度合计
type MonthTotal struct {
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Average decimal.Decimal `json:"average"`
}

// Comparison 与上月对比
type Comparison struct {
	PreviousTotal    decimal.Decimal `json:"previous_total"`
	ChangeAmount     decimal.Decimal `json:"change_amount"`
	ChangePercentage float64         `json:"change_percentage"`
	Trend            string          `json:"trend"`
}

// SummaryReport 汇总
type SummaryReport struct {
	CurrentMonth            MonthTotal  `json:"current_month"`
	CurrentWeek             PeriodTotal `json:"current_week"`
	Today                   PeriodTotal `json:"today"`
	ComparisonPreviousMonth Comparison  `json:"comparison_previous_month"`
}

type summaryWindows struct {
	month, week, today, previous Window
}

func resolveSummaryWindows(w Window, target *time.Time, today time.Time) summaryWindows {
	anchor := resolveTarget(target, w, today)

	monthStart, monthEnd := startOfMonth(anchor), endOfMonth(anchor)
	weekStart, weekEnd := startOfWeek(anchor), anchor
	if w.From != nil {
		monthStart, weekStart = *w.From, *w.From
	}
	if w.To != nil {
		monthEnd, weekEnd = *w.To, *w.To
	}
	prev := anchor.AddDate(0, 0, -30)

	return summaryWindows{
		month:    Between(monthStart, monthEnd),
		week:     Between(weekStart, weekEnd),
		today:    Between(anchor, anchor),
		previous: Between(startOfMonth(prev), endOfMonth(prev)),
	}
}

// span 覆盖全部子区间的查询范围
func (s summaryWindows) span() Window {
	from, to := *s.month.From, *s.month.To
	for _, w := range []Window{s.week, s.today, s.previous} {
		if w.From.Before(from) {
			from = *w.From
		}
		if w.To.After(to) {
			to = *w.To
		}
	}
	return Between(from, to)
}

// Summary 本月、本周、当日合计以及与上月的对比
func Summary(expenses []models.Expense, w Window, target *time.Time, today time.Time) SummaryReport {
	ws := resolveSummaryWindows(w, target, today)

	month := ws.month.filter(expenses)
	week := ws.week.filter(expenses)
	day := ws.today.filter(expenses)
	previous := ws.previous.filter(expenses)

	monthTotal := sum(month)
	previousTotal := sum(previous)
	change := monthTotal.Sub(previousTotal)

	var changePct float64
	switch {
	case !previousTotal.IsZero():
		changePct = change.Mul(hundred).Div(previousTotal).Round(1).InexactFloat64()
	case !monthTotal.IsZero():
		changePct = 100
	}

	trend := TrendStable
	if change.IsPositive() {
		trend = TrendUp
	} else if change.IsNegative() {
		trend = TrendDown
	}

	average := decimal.Zero
	if len(month) > 0 {
		average = monthTotal.Div(decimal.NewFromInt(int64(len(month))))
	}

	return SummaryReport{
		CurrentMonth: MonthTotal{
			Total:   monthTotal.Round(2),
			Count:   len(month),
			Average: average.Round(2),
		},
		CurrentWeek: PeriodTotal{Total: sum(week).Round(2), Count: len(week)},
		Today:       PeriodTotal{Total: sum(day).Round(2), Count: len(day)},
		ComparisonPreviousMonth: Comparison{
			PreviousTotal:    previousTotal.Round(2),
			ChangeAmount:     change.Round(2),
			ChangePercentage: changePct,
			Trend:            trend,
		},
	}
}
