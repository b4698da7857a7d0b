package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expensebot/api"
	"expensebot/config"
	"expensebot/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode, RateLimit: 3},
		Security: config.SecurityConfig{JWTSecret: secret, JWTExpireTime: time.Hour},
	}
	middleware.InitJWT(cfg)
	t.Cleanup(func() { middleware.InitJWT(&config.Config{}) })

	return SetupRouter(cfg, Handlers{
		Webhook:    api.NewWebhookHandler(config.TelegramConfig{}, nil, nil),
		Manual:     api.NewManualHandler(nil, nil, nil, nil, ""),
		Expense:    api.NewExpenseHandler(nil, ""),
		Export:     api.NewExportHandler(nil, ""),
		Category:   api.NewCategoryHandler(nil),
		Statistics: api.NewStatisticsHandler(nil, ""),
	}, zerolog.Nop())
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := testRouter(t, "")
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestWebhookRoute(t *testing.T) {
	r := testRouter(t, "secret")
	w := serve(r, http.MethodPost, "/api/telegram/webhook", "")
	// 不经过 JWT
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := testRouter(t, "")
	w := serve(r, http.MethodOptions, "/api/v1/expenses", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIRequiresToken(t *testing.T) {
	r := testRouter(t, "secret")

	w := serve(r, http.MethodGet, "/api/v1/categories/suggest?description=taxi", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.GenerateToken("tg:42", time.Minute)
	require.NoError(t, err)
	w = serve(r, http.MethodGet, "/api/v1/categories/suggest?description=taxi", token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRateLimited(t *testing.T) {
	r := testRouter(t, "")
	for i := 0; i < 3; i++ {
		w := serve(r, http.MethodGet, "/api/v1/categories/suggest?description=taxi", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, http.MethodGet, "/api/v1/categories/suggest?description=taxi", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 健康检查不限流
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
}
