package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"expensebot/approval"
	"expensebot/database"
	"expensebot/extraction"
	"expensebot/pending"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manualRouter(t *testing.T, mw ...gin.HandlerFunc) (*gin.Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	machine := approval.New(pending.NewMemoryStore(10*time.Minute), store, approval.Options{
		HomeCurrency: "MDL",
		IsNotFound:   func(err error) bool { return errors.Is(err, database.ErrCategoryNotFound) },
	}, zerolog.Nop())
	engine := extraction.NewEngine(nil, "MDL", 0.2, zerolog.Nop())
	engine.SetClock(func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) })

	h := NewManualHandler(engine, machine, store, nil, "web")
	r := gin.New()
	r.Use(mw...)
	g := r.Group("/api/v1/expenses/manual")
	g.POST("/preview", h.Preview)
	g.POST("/confirm", h.Confirm)
	g.POST("/reject", h.Reject)
	return r, store
}

func preview(t *testing.T, r *gin.Engine, text string) (string, map[string]interface{}) {
	t.Helper()
	body, _ := json.Marshal(PreviewRequest{Text: text})
	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/preview", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	return data["pending_id"].(string), data
}

func TestManual_PreviewValidation(t *testing.T) {
	r, store := manualRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/preview", `{"text":"  abc "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgTextTooShort, decodeBody(t, w)["message"])

	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/preview", `{"text":"am cumpărat ceva"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgNoAmount, decodeBody(t, w)["message"])
	assert.Empty(t, store.expenses)
}

func TestManual_PreviewConfirm(t *testing.T) {
	r, store := manualRouter(t)

	id, data := preview(t, r, "Taxi 30 lei")
	assert.NotEmpty(t, id)
	assert.Equal(t, "heuristic", data["source"])
	cand := data["data"].(map[string]interface{})
	assert.Equal(t, 30.0, cand["amount"])
	assert.Equal(t, "MDL", cand["currency"])
	assert.Equal(t, "Transport", cand["category"])
	assert.Empty(t, store.expenses)

	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	exp := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, 30.0, exp["amount"])
	assert.Equal(t, "web", exp["owner_id"])
	assert.Equal(t, "manual", exp["source"])
	assert.Equal(t, 2.0, exp["category_id"])
	require.Len(t, store.expenses, 1)

	// 已确认的记录不可再次确认或取消
	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgPreviewGone, decodeBody(t, w)["message"])
	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/reject", `{"pending_id":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, store.expenses, 1)
}

func TestManual_ConfirmCategoryOverride(t *testing.T) {
	r, store := manualRouter(t)

	id, _ := preview(t, r, "Taxi 30 lei")
	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`","category_id":99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgBadCategoryID, decodeBody(t, w)["message"])
	assert.Empty(t, store.expenses)

	// 失败后记录仍可确认
	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`","category_id":"3"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 3.0, decodeBody(t, w)["data"].(map[string]interface{})["category_id"])

	id, _ = preview(t, r, "Taxi 45 lei")
	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`","category_id":null}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, decodeBody(t, w)["data"].(map[string]interface{})["category_id"])
}

func TestManual_ConfirmMissingID(t *testing.T) {
	r, _ := manualRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgPreviewGone, decodeBody(t, w)["message"])

	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManual_Reject(t *testing.T) {
	r, store := manualRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/reject", `{"pending_id":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgMissingPendingID, decodeBody(t, w)["message"])

	id, _ := preview(t, r, "Am plătit 480 lei la Linella.")
	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/reject", `{"pending_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["data"].(map[string]interface{})["ok"])

	w = doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.expenses)
}

func TestManual_OwnerFromToken(t *testing.T) {
	r, store := manualRouter(t, withSubject("user-7"))

	id, _ := preview(t, r, "Taxi 30 lei")
	w := doRequest(r, http.MethodPost, "/api/v1/expenses/manual/confirm", `{"pending_id":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.expenses, 1)
	assert.Equal(t, "user-7", store.expenses[0].OwnerID)
}

func TestParseCategoryOverride(t *testing.T) {
	tests := []struct {
		raw     string
		clear   bool
		id      uint
		wantErr bool
	}{
		{raw: ""},
		{raw: "null", clear: true},
		{raw: `""`, clear: true},
		{raw: "4", id: 4},
		{raw: `"4"`, id: 4},
		{raw: "0", wantErr: true},
		{raw: `"abc"`, wantErr: true},
		{raw: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ov, err := parseCategoryOverride(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.clear, ov.ClearCategory)
			if tt.id == 0 {
				assert.Nil(t, ov.CategoryID)
			} else {
				require.NotNil(t, ov.CategoryID)
				assert.Equal(t, tt.id, *ov.CategoryID)
			}
		})
	}
}
