package api

import (
	"context"
	"strconv"
	"time"

	"expensebot/stats"

	"github.com/gin-gonic/gin"
)

// StatsProvider 统计数据来源
type StatsProvider interface {
	Summary(ctx context.Context, owner string, w stats.Window, target *time.Time) (stats.SummaryReport, error)
	CategoryBreakdown(ctx context.Context, owner string, w stats.Window) (stats.CategoryReport, error)
	VendorRanking(ctx context.Context, owner string, w stats.Window, limit int) (stats.VendorReport, error)
	Trend(ctx context.Context, owner string, q stats.TrendQuery) (stats.TrendReport, error)
}

// StatisticsHandler 统计接口
type StatisticsHandler struct {
	stats        StatsProvider
	defaultOwner string
}

// NewStatisticsHandler 创建统计处理器
func NewStatisticsHandler(p StatsProvider, defaultOwner string) *StatisticsHandler {
	return &StatisticsHandler{stats: p, defaultOwner: defaultOwner}
}

func optionalDay(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := stats.ParseDay(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// window 解析 date_from / date_to
func window(c *gin.Context) (stats.Window, bool) {
	from, err := optionalDay(c, "date_from")
	if err != nil {
		BadRequest(c, err.Error())
		return stats.Window{}, false
	}
	to, err := optionalDay(c, "date_to")
	if err != nil {
		BadRequest(c, err.Error())
		return stats.Window{}, false
	}
	if from != nil && to != nil && from.After(*to) {
		BadRequest(c, "date_from 不能晚于 date_to")
		return stats.Window{}, false
	}
	return stats.NewWindow(from, to), true
}

// Summary 汇总
// @Summary 消费汇总
// @Description 锚定日期所在月、周、当日的合计，以及与上月的对比
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Param target_date query string false "锚定日期 (YYYY-MM-DD)，默认今天"
// @Success 200 {object} Response{data=stats.SummaryReport} "获取成功"
// @Failure 400 {object} Response "日期格式错误"
// @Router /api/v1/statistics/summary [get]
func (h *StatisticsHandler) Summary(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	target, err := optionalDay(c, "target_date")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	report, err := h.stats.Summary(c.Request.Context(), ownerID(c, h.defaultOwner), w, target)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	Success(c, report)
}

// ByCategory 类别占比
// @Summary 按类别统计
// @Description 区间内各类别的合计、笔数与占比，未分类单独成组
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Success 200 {object} Response{data=stats.CategoryReport} "获取成功"
// @Failure 400 {object} Response "日期格式错误"
// @Router /api/v1/statistics/by_category [get]
func (h *StatisticsHandler) ByCategory(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	report, err := h.stats.CategoryBreakdown(c.Request.Context(), ownerID(c, h.defaultOwner), w)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	Success(c, report)
}

// ByVendor 商家排行
// @Summary 按商家统计
// @Description 区间内消费最多的商家
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Param limit query int false "返回数量，默认 5"
// @Success 200 {object} Response{data=stats.VendorReport} "获取成功"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/statistics/by_vendor [get]
func (h *StatisticsHandler) ByVendor(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	limit := stats.DefaultVendorLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(c, "limit 必须为正整数")
			return
		}
		limit = n
	}
	report, err := h.stats.VendorRanking(c.Request.Context(), ownerID(c, h.defaultOwner), w, limit)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	Success(c, report)
}

// Trend 逐日趋势
// @Summary 消费趋势
// @Description 逐日合计，天数限制在 2 到 90 之间
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Param target_date query string false "锚定日期 (YYYY-MM-DD)"
// @Param range_value query int false "天数，默认 10"
// @Param trend_type query string false "趋势类型，默认 daily"
// @Success 200 {object} Response{data=stats.TrendReport} "获取成功"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/statistics/trend [get]
func (h *StatisticsHandler) Trend(c *gin.Context) {
	w, ok := window(c)
	if !ok {
		return
	}
	target, err := optionalDay(c, "target_date")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	q := stats.TrendQuery{Type: c.Query("trend_type"), Target: target, Window: w}
	if v := c.Query("range_value"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			BadRequest(c, "range_value 必须为整数")
			return
		}
		q.Range = &n
	}
	report, err := h.stats.Trend(c.Request.Context(), ownerID(c, h.defaultOwner), q)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	Success(c, report)
}
