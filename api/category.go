package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"expensebot/database"
	"expensebot/extraction"
	"expensebot/models"

	"github.com/gin-gonic/gin"
)

// CategoryStore 类别数据访问
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, cat *models.Category) error
	UpdateCategory(ctx context.Context, id uint, upd database.CategoryUpdate) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uint) (int64, error)
}

// CategoryHandler 消费类别管理
type CategoryHandler struct {
	store CategoryStore
}

func NewCategoryHandler(store CategoryStore) *CategoryHandler {
	return &CategoryHandler{store: store}
}

type CategoryCreateRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=50"`
	Color string `json:"color" binding:"omitempty,max=20"` // 颜色代码，如 #ef4444
	Icon  string `json:"icon" binding:"omitempty,max=16"`
}

type CategoryUpdateRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1,max=50"`
	Color *string `json:"color" binding:"omitempty,max=20"`
	Icon  *string `json:"icon" binding:"omitempty,max=16"`
}

func parseCategoryID(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id64 == 0 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id64), true
}

// List 列出所有类别
// @Summary 获取消费类别列表
// @Description 按排序值返回全部类别
// @Tags 消费类别
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Category} "获取成功"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	list, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, list)
}

// Create 创建类别
// @Summary 创建消费类别
// @Description 名称不区分大小写唯一，未指定颜色和图标时自动建议
// @Tags 消费类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CategoryCreateRequest true "类别信息"
// @Success 201 {object} Response{data=models.Category} "创建成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 409 {object} Response "类别名称已存在"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req CategoryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(c, "名称不能为空")
		return
	}

	sug := extraction.SuggestCategory(req.Name)
	cat := &models.Category{Name: req.Name, Color: req.Color, Icon: req.Icon}
	if cat.Color == "" {
		cat.Color = sug.Color
	}
	if cat.Icon == "" {
		cat.Icon = sug.Icon
	}

	err := h.store.CreateCategory(c.Request.Context(), cat)
	switch {
	case errors.Is(err, database.ErrCategoryExists):
		Conflict(c, "类别名称已存在")
	case errors.Is(err, database.ErrEmptyName):
		BadRequest(c, "名称不能为空")
	case err != nil:
		InternalError(c, SafeErrorMessage(err, "创建失败"))
	default:
		Created(c, cat)
	}
}

// Update 更新类别
// @Summary 更新消费类别
// @Description 重命名、修改颜色或图标
// @Tags 消费类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param request body CategoryUpdateRequest true "更新的类别信息"
// @Success 200 {object} Response{data=models.Category} "更新成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 404 {object} Response "类别不存在"
// @Failure 409 {object} Response "类别名称已存在"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}
	var req CategoryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	cat, err := h.store.UpdateCategory(c.Request.Context(), id, database.CategoryUpdate{
		Name:  req.Name,
		Color: req.Color,
		Icon:  req.Icon,
	})
	switch {
	case errors.Is(err, database.ErrCategoryNotFound):
		NotFound(c, "类别不存在")
	case errors.Is(err, database.ErrCategoryExists):
		Conflict(c, "类别名称已存在")
	case errors.Is(err, database.ErrEmptyName):
		BadRequest(c, "名称不能为空")
	case err != nil:
		InternalError(c, SafeErrorMessage(err, "更新失败"))
	default:
		SuccessWithMessage(c, "更新成功", cat)
	}
}

// Delete 删除类别
// @Summary 删除消费类别
// @Description 默认类别不可删除；关联消费记录的类别被置空
// @Tags 消费类别
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response "删除成功，返回被置空的消费记录数"
// @Failure 400 {object} Response "默认类别不可删除"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}
	detached, err := h.store.DeleteCategory(c.Request.Context(), id)
	switch {
	case errors.Is(err, database.ErrCategoryNotFound):
		NotFound(c, "类别不存在")
	case errors.Is(err, database.ErrDefaultCategory):
		BadRequest(c, "默认类别不可删除")
	case err != nil:
		InternalError(c, SafeErrorMessage(err, "删除失败"))
	default:
		SuccessWithMessage(c, "删除成功", gin.H{"detached_expenses": detached})
	}
}

// Suggest 根据描述建议类别
// @Summary 建议类别
// @Description 按关键字匹配预置类别，否则取描述的前两个词
// @Tags 消费类别
// @Produce json
// @Security BearerAuth
// @Param description query string true "消费描述"
// @Success 200 {object} Response{data=extraction.Suggestion} "建议结果"
// @Failure 400 {object} Response "缺少描述"
// @Router /api/v1/categories/suggest [get]
func (h *CategoryHandler) Suggest(c *gin.Context) {
	desc := strings.TrimSpace(c.Query("description"))
	if desc == "" {
		BadRequest(c, "请提供 description")
		return
	}
	Success(c, extraction.SuggestCategory(desc))
}
