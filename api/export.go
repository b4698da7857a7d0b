package api

import (
	"fmt"
	"net/http"
	"net/url"

	"expensebot/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Cheltuieli"
	exportMaxRows  = 10000
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportFileStem = "cheltuieli"
)

var exportHeaders = []string{"Data", "Vendor", "Sumă", "Valută", "Categorie", "Sursă", "Note", "Încredere"}

// ExportHandler 导出处理器
type ExportHandler struct {
	store        ExpenseStore
	defaultOwner string
}

// NewExportHandler 创建导出处理器
func NewExportHandler(store ExpenseStore, defaultOwner string) *ExportHandler {
	return &ExportHandler{store: store, defaultOwner: defaultOwner}
}

func cellBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
}

// buildWorkbook 生成消费记录表格，最后一行为合计
func buildWorkbook(expenses []models.Expense) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder(),
	})
	dataStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center"},
		Border:    cellBorder(),
	})
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder(),
	})

	widths := map[string]float64{"A": 12, "B": 28, "C": 12, "D": 8, "E": 18, "F": 10, "G": 40, "H": 10}
	for col, w := range widths {
		f.SetColWidth(exportSheet, col, col, w)
	}

	for i, h := range exportHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(exportSheet, cell, h)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	// 按币种分别合计
	totals := map[string]decimal.Decimal{}
	var currencies []string
	for i, e := range expenses {
		row := i + 2
		category := models.UncategorizedName
		if e.Category != nil {
			category = e.Category.Name
		}
		amount, _ := e.Amount.Round(2).Float64()
		f.SetCellValue(exportSheet, fmt.Sprintf("A%d", row), e.PurchaseDate.Format(models.DateLayout))
		f.SetCellValue(exportSheet, fmt.Sprintf("B%d", row), e.Vendor)
		f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), amount)
		f.SetCellValue(exportSheet, fmt.Sprintf("D%d", row), e.Currency)
		f.SetCellValue(exportSheet, fmt.Sprintf("E%d", row), category)
		f.SetCellValue(exportSheet, fmt.Sprintf("F%d", row), e.Source)
		f.SetCellValue(exportSheet, fmt.Sprintf("G%d", row), e.Metadata.Notes)
		f.SetCellValue(exportSheet, fmt.Sprintf("H%d", row), e.AIConfidence)
		f.SetCellStyle(exportSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), dataStyle)

		if _, ok := totals[e.Currency]; !ok {
			currencies = append(currencies, e.Currency)
		}
		totals[e.Currency] = totals[e.Currency].Add(e.Amount)
	}

	row := len(expenses) + 2
	f.SetCellValue(exportSheet, fmt.Sprintf("A%d", row), "Total")
	f.MergeCell(exportSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
	if len(currencies) == 1 {
		amount, _ := totals[currencies[0]].Round(2).Float64()
		f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), amount)
		f.SetCellValue(exportSheet, fmt.Sprintf("D%d", row), currencies[0])
	} else {
		var parts string
		for i, cur := range currencies {
			if i > 0 {
				parts += "; "
			}
			parts += totals[cur].StringFixed(2) + " " + cur
		}
		f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), parts)
		f.MergeCell(exportSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row))
	}
	f.SetCellValue(exportSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("%d înregistrări", len(expenses)))
	f.MergeCell(exportSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("H%d", row))
	f.SetCellStyle(exportSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), summaryStyle)

	return f, nil
}

// Excel 导出消费记录为 xlsx
// @Summary 导出消费记录
// @Description 使用与列表相同的过滤条件导出 Excel 文件
// @Tags 导出
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param date_from query string false "开始日期 (YYYY-MM-DD)"
// @Param date_to query string false "结束日期 (YYYY-MM-DD)"
// @Param category_id query []int false "类别ID，可重复"
// @Success 200 {file} file "Excel 文件"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/expenses/export [get]
func (h *ExportHandler) Excel(c *gin.Context) {
	filter, err := parseExpenseFilter(c, ownerID(c, h.defaultOwner))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	filter.Limit, filter.Skip = exportMaxRows, 0

	expenses, _, err := h.store.ListExpenses(c.Request.Context(), filter)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询数据失败"))
		return
	}

	f, err := buildWorkbook(expenses)
	if err != nil {
		InternalError(c, "生成 Excel 失败")
		return
	}
	defer f.Close()

	filename := exportFileStem
	if filter.DateFrom != nil {
		filename += "_" + filter.DateFrom.Format(models.DateLayout)
	}
	if filter.DateTo != nil {
		filename += "_" + filter.DateTo.Format(models.DateLayout)
	}
	filename += ".xlsx"

	c.Header("Content-Type", xlsxMIME)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "生成 Excel 失败")
		return
	}
}
