package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"expensebot/database"
	"expensebot/models"
	"expensebot/stats"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ExpenseStore 消费记录数据访问
type ExpenseStore interface {
	FindExpense(ctx context.Context, id string) (*models.Expense, error)
	ListExpenses(ctx context.Context, f database.ExpenseFilter) ([]models.Expense, int64, error)
	UpdateExpense(ctx context.Context, id string, upd database.ExpenseUpdate) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// ExpenseHandler 消费记录处理器
type ExpenseHandler struct {
	store        ExpenseStore
	defaultOwner string
}

// NewExpenseHandler 创建消费记录处理器
func NewExpenseHandler(store ExpenseStore, defaultOwner string) *ExpenseHandler {
	return &ExpenseHandler{store: store, defaultOwner: defaultOwner}
}

// UpdateExpenseRequest 更新消费记录请求，字段缺省表示不修改
type UpdateExpenseRequest struct {
	Vendor        *string          `json:"vendor"`
	Amount        *decimal.Decimal `json:"amount" swaggertype:"number"`
	Currency      *string          `json:"currency" binding:"omitempty,len=3"`
	PurchaseDate  *string          `json:"purchase_date" example:"2025-01-10"`
	CategoryID    *uint            `json:"category_id"`
	ClearCategory bool             `json:"clear_category"`
}

func optionalDecimal(c *gin.Context, key string) (*decimal.Decimal, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "."))
	if err != nil {
		return nil, errors.New(key + " 格式错误")
	}
	return &d, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " 必须为非负整数")
	}
	return n, nil
}

// parseExpenseFilter 解析列表查询参数
func parseExpenseFilter(c *gin.Context, owner string) (database.ExpenseFilter, error) {
	f := database.ExpenseFilter{
		OwnerID: owner,
		SortBy:  c.DefaultQuery("sort_by", "purchase_date"),
		Order:   c.DefaultQuery("order", "desc"),
	}
	var err error
	if f.DateFrom, err = optionalDay(c, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDay(c, "date_to"); err != nil {
		return f, err
	}
	for _, raw := range c.QueryArray("category_id") {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return f, errors.New("category_id 格式错误")
		}
		f.CategoryIDs = append(f.CategoryIDs, uint(id))
	}
	if f.MinAmount, err = optionalDecimal(c, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = optionalDecimal(c, "max_amount"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit", 100); err != nil {
		return f, err
	}
	if f.Skip, err = queryInt(c, "skip", 0); err != nil {
		return f, err
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	return f, nil
}

// List 获取消费记录列表
// @Summary 获取消费记录列表
// @Description 支持日期、类别、金额过滤与排序
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Param category_id query []int false "类别ID，可重复"
// @Param min_amount query number false "最小金额"
// @Param max_amount query number false "最大金额"
// @Param sort_by query string false "排序字段 purchase_date|created_at|amount|vendor"
// @Param order query string false "asc|desc"
// @Param limit query int false "返回数量，默认 100"
// @Param skip query int false "跳过数量"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Expense}} "获取成功"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	f, err := parseExpenseFilter(c, ownerID(c, h.defaultOwner))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	list, total, err := h.store.ListExpenses(c.Request.Context(), f)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "Nu am putut încărca tranzacțiile."))
		return
	}
	if list == nil {
		list = []models.Expense{}
	}
	Success(c, PageResponse{Total: total, Skip: f.Skip, Limit: f.Limit, List: list})
}

// load 读取记录并校验所有者
func (h *ExpenseHandler) load(c *gin.Context) (*models.Expense, bool) {
	e, err := h.store.FindExpense(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrExpenseNotFound) {
		NotFound(c, "消费记录不存在")
		return nil, false
	}
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return nil, false
	}
	if owner := ownerID(c, h.defaultOwner); owner != "" && e.OwnerID != owner {
		NotFound(c, "消费记录不存在")
		return nil, false
	}
	return e, true
}

// Get 获取消费记录详情
// @Summary 获取消费记录详情
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path string true "消费记录ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	if e, ok := h.load(c); ok {
		Success(c, e)
	}
}

// Update 更新消费记录
// @Summary 更新消费记录
// @Description 商家不能为空，金额不能为负，类别必须存在
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "消费记录ID"
// @Param request body UpdateExpenseRequest true "更新内容"
// @Success 200 {object} Response{data=models.Expense} "更新成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	upd := database.ExpenseUpdate{
		Vendor:        req.Vendor,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CategoryID:    req.CategoryID,
		ClearCategory: req.ClearCategory,
	}
	if req.PurchaseDate != nil {
		d, err := time.Parse(models.DateLayout, *req.PurchaseDate)
		if err != nil {
			BadRequest(c, "purchase_date 格式错误，应为 YYYY-MM-DD")
			return
		}
		d = stats.Day(d)
		upd.PurchaseDate = &d
	}

	e, err := h.store.UpdateExpense(c.Request.Context(), c.Param("id"), upd)
	switch {
	case errors.Is(err, database.ErrExpenseNotFound):
		NotFound(c, "消费记录不存在")
	case errors.Is(err, database.ErrEmptyVendor):
		BadRequest(c, "商家不能为空")
	case errors.Is(err, database.ErrNegativeAmount):
		BadRequest(c, "金额不能为负数")
	case errors.Is(err, database.ErrCategoryNotFound):
		BadRequest(c, "类别不存在")
	case err != nil:
		InternalError(c, SafeErrorMessage(err, "更新失败"))
	default:
		SuccessWithMessage(c, "更新成功", e)
	}
}

// Delete 删除消费记录
// @Summary 删除消费记录
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path string true "消费记录ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	err := h.store.DeleteExpense(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, database.ErrExpenseNotFound):
		NotFound(c, "消费记录不存在")
	case err != nil:
		InternalError(c, SafeErrorMessage(err, "删除失败"))
	default:
		SuccessWithMessage(c, "删除成功", nil)
	}
}
