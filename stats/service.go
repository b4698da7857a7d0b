package stats

import (
	"context"
	"time"

	"expensebot/models"
)

// ExpenseSource 按日期区间读取消费记录
type ExpenseSource interface {
	ExpensesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Expense, error)
}

// Service 从数据源读取记录后计算统计
type Service struct {
	src ExpenseSource
	now func() time.Time
}

// NewService 创建统计服务
func NewService(src ExpenseSource) *Service {
	return &Service{src: src, now: time.Now}
}

func (s *Service) load(ctx context.Context, owner string, w Window) ([]models.Expense, error) {
	from, to := w.Bounds()
	return s.src.ExpensesBetween(ctx, owner, from, to)
}

// CategoryBreakdown 类别占比
func (s *Service) CategoryBreakdown(ctx context.Context, owner string, w Window) (CategoryReport, error) {
	list, err := s.load(ctx, owner, w)
	if err != nil {
		return CategoryReport{}, err
	}
	return CategoryBreakdown(list, w), nil
}

// VendorRanking 商家排行
func (s *Service) VendorRanking(ctx context.Context, owner string, w Window, limit int) (VendorReport, error) {
	list, err := s.load(ctx, owner, w)
	if err != nil {
		return VendorReport{}, err
	}
	return VendorRanking(list, w, limit), nil
}

// Trend 逐日趋势
func (s *Service) Trend(ctx context.Context, owner string, q TrendQuery) (TrendReport, error) {
	today := s.now()
	start, n := trendSpan(q, today)
	end := start.AddDate(0, 0, n-1)
	if q.Window.To != nil && q.Window.To.Before(end) {
		end = *q.Window.To
	}
	list, err := s.src.ExpensesBetween(ctx, owner, start, end)
	if err != nil {
		return TrendReport{}, err
	}
	return Trend(list, q, today), nil
}

// Summary 汇总
func (s *Service) Summary(ctx context.Context, owner string, w Window, target *time.Time) (SummaryReport, error) {
	today := s.now()
	list, err := s.load(ctx, owner, resolveSummaryWindows(w, target, today).span())
	if err != nil {
		return SummaryReport{}, err
	}
	return Summary(list, w, target, today), nil
}
