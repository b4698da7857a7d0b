package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func expenseRouter(store *memStore, defaultOwner string, mw ...gin.HandlerFunc) *gin.Engine {
	h := NewExpenseHandler(store, defaultOwner)
	export := NewExportHandler(store, defaultOwner)
	r := gin.New()
	r.Use(mw...)
	g := r.Group("/api/v1/expenses")
	g.GET("", h.List)
	g.GET("/export", export.Excel)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	return r
}

func listIDs(t *testing.T, r *gin.Engine, query string) ([]string, float64) {
	t.Helper()
	w := doRequest(r, http.MethodGet, "/api/v1/expenses"+query, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	ids := []string{}
	for _, item := range data["list"].([]interface{}) {
		ids = append(ids, item.(map[string]interface{})["id"].(string))
	}
	return ids, data["total"].(float64)
}

func TestExpense_ListFilters(t *testing.T) {
	store := newMemStore()
	seedExpenses(store)
	r := expenseRouter(store, "tg:42")

	ids, total := listIDs(t, r, "")
	assert.Equal(t, 4.0, total)
	assert.Equal(t, "e4", ids[3])

	ids, _ = listIDs(t, r, "?date_from=2025-01-01&category_id=2")
	assert.Equal(t, []string{"e3"}, ids)

	ids, _ = listIDs(t, r, "?category_id=1&category_id=2&min_amount=40&sort_by=amount&order=asc")
	assert.Equal(t, []string{"e2", "e4", "e1"}, ids)

	ids, _ = listIDs(t, r, "?max_amount=50,00&date_to=2025-01-31")
	assert.ElementsMatch(t, []string{"e2", "e3"}, ids)

	ids, total = listIDs(t, r, "?limit=2&skip=1&order=asc")
	assert.Equal(t, 4.0, total)
	assert.Len(t, ids, 2)

	for _, q := range []string{"?date_from=01.01.2025", "?category_id=x", "?min_amount=abc", "?limit=-1"} {
		w := doRequest(r, http.MethodGet, "/api/v1/expenses"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestExpense_GetRespectsOwner(t *testing.T) {
	store := newMemStore()
	seedExpenses(store)

	r := expenseRouter(store, "tg:42")
	w := doRequest(r, http.MethodGet, "/api/v1/expenses/e1", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Linella", data["vendor"])
	assert.Equal(t, "Groceries", data["category"].(map[string]interface{})["name"])

	w = doRequest(r, http.MethodGet, "/api/v1/expenses/e5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(r, http.MethodGet, "/api/v1/expenses/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = expenseRouter(store, "tg:42", withSubject("tg:7"))
	w = doRequest(r, http.MethodGet, "/api/v1/expenses/e5", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpense_Update(t *testing.T) {
	store := newMemStore()
	seedExpenses(store)
	r := expenseRouter(store, "")

	w := doRequest(r, http.MethodPut, "/api/v1/expenses/e3", `{"vendor":"Bolt Food","amount":41.456,"purchase_date":"2025-01-12","category_id":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Bolt Food", data["vendor"])
	assert.Equal(t, 41.46, data["amount"])
	assert.Equal(t, 1.0, data["category_id"])
	assert.Equal(t, "2025-01-12", store.expenses[2].PurchaseDate.Format("2006-01-02"))

	w = doRequest(r, http.MethodPut, "/api/v1/expenses/e3", `{"clear_category":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, store.expenses[2].CategoryID)

	cases := map[string]int{
		`{"vendor":"  "}`:                http.StatusBadRequest,
		`{"amount":-5}`:                  http.StatusBadRequest,
		`{"category_id":99}`:             http.StatusBadRequest,
		`{"purchase_date":"12.01.2025"}`: http.StatusBadRequest,
		`{"currency":"LEI1"}`:            http.StatusBadRequest,
	}
	for body, code := range cases {
		w = doRequest(r, http.MethodPut, "/api/v1/expenses/e3", body)
		assert.Equal(t, code, w.Code, body)
	}

	w = doRequest(r, http.MethodPut, "/api/v1/expenses/missing", `{"vendor":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpense_Delete(t *testing.T) {
	store := newMemStore()
	seedExpenses(store)
	r := expenseRouter(store, "tg:42")

	w := doRequest(r, http.MethodDelete, "/api/v1/expenses/e5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, store.expenses, 5)

	w = doRequest(r, http.MethodDelete, "/api/v1/expenses/e1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, store.expenses, 4)

	w = doRequest(r, http.MethodDelete, "/api/v1/expenses/e1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport_Excel(t *testing.T) {
	store := newMemStore()
	seedExpenses(store)
	store.expenses[0].Metadata.Notes = "cumpărături"
	r := expenseRouter(store, "tg:42")

	w := doRequest(r, http.MethodGet, "/api/v1/expenses/export?date_from=2025-01-01&date_to=2025-01-31&order=asc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxMIME, w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(w.Header().Get("Content-Disposition"), "cheltuieli_2025-01-01_2025-01-31.xlsx"))

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "2025-01-10", rows[1][0])
	assert.Equal(t, "Linella", rows[1][1])
	assert.Equal(t, "Groceries", rows[1][4])
	assert.Equal(t, "cumpărături", rows[1][6])
	assert.Equal(t, "Transport", rows[3][4])

	assert.Equal(t, "Total", rows[4][0])
	total, _ := f.GetCellValue(exportSheet, "C5")
	assert.Equal(t, "180", total)
	count, _ := f.GetCellValue(exportSheet, "E5")
	assert.Equal(t, "3 înregistrări", count)
}

func TestExport_BadQuery(t *testing.T) {
	r := expenseRouter(newMemStore(), "")
	w := doRequest(r, http.MethodGet, "/api/v1/expenses/export?date_to=ieri", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
