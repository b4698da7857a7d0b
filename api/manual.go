package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"expensebot/approval"
	"expensebot/database"
	"expensebot/extraction"
	"expensebot/models"
	"expensebot/service"

	"github.com/gin-gonic/gin"
)

// 手动录入提示
const (
	msgTextTooShort     = "Descrie cheltuiala în câteva cuvinte."
	msgPreviewGone      = "Previzualizarea nu mai este disponibilă."
	msgMissingPendingID = "Lipsește identificatorul previzualizării."
	msgNoAmount         = "Nu am putut detecta suma."
	msgSaveFailed       = "Nu am putut salva cheltuiala."
	msgBadCategoryID    = "Categorie invalidă."
)

// Extractor 文本识别
type Extractor interface {
	Extract(ctx context.Context, text string, categories []string) extraction.Result
}

// CategoryLister 列出类别
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// ManualHandler 手动录入：预览、确认、取消
type ManualHandler struct {
	extractor    Extractor
	machine      *approval.Machine
	categories   CategoryLister
	alerter      *service.Alerter
	defaultOwner string
}

// NewManualHandler 创建手动录入处理器
func NewManualHandler(extractor Extractor, machine *approval.Machine, categories CategoryLister, alerter *service.Alerter, defaultOwner string) *ManualHandler {
	return &ManualHandler{
		extractor:    extractor,
		machine:      machine,
		categories:   categories,
		alerter:      alerter,
		defaultOwner: defaultOwner,
	}
}

// PreviewRequest 预览请求
type PreviewRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// PreviewResponse 预览结果
type PreviewResponse struct {
	PendingID string                  `json:"pending_id"`
	Data      models.CandidateExpense `json:"data"`
	Source    extraction.Provenance   `json:"source"`
	Raw       string                  `json:"raw,omitempty"`
}

// ConfirmRequest 确认请求，category_id 缺省表示不覆盖，null 或空串表示清除
type ConfirmRequest struct {
	PendingID  string          `json:"pending_id"`
	CategoryID json.RawMessage `json:"category_id"`
}

// PendingRequest 取消请求
type PendingRequest struct {
	PendingID string `json:"pending_id"`
}

// Preview 识别文本并生成待确认记录
// @Summary 手动录入预览
// @Description 识别自由文本中的金额、商家、日期与类别，返回待确认记录 ID，10 分钟内有效
// @Tags 手动录入
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PreviewRequest true "消费描述"
// @Success 200 {object} Response{data=PreviewResponse} "预览成功"
// @Failure 400 {object} Response "文本过短或无法识别金额"
// @Router /api/v1/expenses/manual/preview [post]
func (h *ManualHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	_ = c.ShouldBindJSON(&req)
	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) < 5 {
		BadRequest(c, msgTextTooShort)
		return
	}

	ctx := c.Request.Context()
	var names []string
	if list, err := h.categories.ListCategories(ctx); err == nil {
		for _, cat := range list {
			names = append(names, cat.Name)
		}
	}

	h.machine.Sweep(ctx)
	res := h.extractor.Extract(ctx, text, names)
	if res.Candidate.Amount == nil {
		BadRequest(c, msgNoAmount)
		return
	}

	source := req.Source
	if source != models.SourceText && source != models.SourceVoice {
		source = models.SourceManual
	}
	entry, err := h.machine.Propose(ctx, approval.Proposal{
		OwnerID: ownerID(c, h.defaultOwner),
		Source:  source,
		RawText: text,
		Result:  res,
	})
	if err != nil {
		h.alerter.Report(ctx, "manual_preview_failed", err, map[string]interface{}{"endpoint": "manual/preview"})
		InternalError(c, SafeErrorMessage(err, "Nu am putut genera previzualizarea."))
		return
	}

	Success(c, PreviewResponse{
		PendingID: entry.ID,
		Data:      entry.Candidate,
		Source:    res.Provenance,
		Raw:       res.Raw,
	})
}

// parseCategoryOverride 解析 category_id
func parseCategoryOverride(raw json.RawMessage) (approval.Overrides, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return approval.Overrides{}, nil
	}
	if s == "null" || s == `""` {
		return approval.Overrides{ClearCategory: true}, nil
	}
	s = strings.Trim(s, `"`)
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return approval.Overrides{}, errors.New(msgBadCategoryID)
	}
	v := uint(id)
	return approval.Overrides{CategoryID: &v}, nil
}

// Confirm 确认待确认记录并保存
// @Summary 手动录入确认
// @Description 保存待确认记录为消费记录，可覆盖类别；同一记录只能被确认或取消一次
// @Tags 手动录入
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ConfirmRequest true "待确认记录"
// @Success 201 {object} Response{data=models.Expense} "保存成功"
// @Failure 400 {object} Response "记录已失效或参数错误"
// @Router /api/v1/expenses/manual/confirm [post]
func (h *ManualHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.PendingID) == "" {
		BadRequest(c, msgPreviewGone)
		return
	}
	ov, err := parseCategoryOverride(req.CategoryID)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	expense, _, err := h.machine.Approve(ctx, req.PendingID, ov)
	switch {
	case errors.Is(err, approval.ErrNotAvailable):
		BadRequest(c, msgPreviewGone)
	case errors.Is(err, extraction.ErrNoAmount):
		BadRequest(c, msgNoAmount)
	case errors.Is(err, database.ErrCategoryNotFound):
		BadRequest(c, msgBadCategoryID)
	case err != nil:
		h.alerter.Report(ctx, "manual_confirm_failed", err, map[string]interface{}{"pending_id": req.PendingID})
		InternalError(c, SafeErrorMessage(err, msgSaveFailed))
	default:
		Created(c, expense)
	}
}

// Reject 取消待确认记录
// @Summary 手动录入取消
// @Description 丢弃待确认记录，不保存消费
// @Tags 手动录入
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PendingRequest true "待确认记录"
// @Success 200 {object} Response "已取消"
// @Failure 400 {object} Response "记录已失效或缺少 ID"
// @Router /api/v1/expenses/manual/reject [post]
func (h *ManualHandler) Reject(c *gin.Context) {
	var req PendingRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.PendingID) == "" {
		BadRequest(c, msgMissingPendingID)
		return
	}
	if _, err := h.machine.Reject(c.Request.Context(), req.PendingID, 0); err != nil {
		BadRequest(c, msgPreviewGone)
		return
	}
	Success(c, gin.H{"ok": true})
}
