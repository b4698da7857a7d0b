package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expensebot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestGemini(t *testing.T, url string, timeout time.Duration) *GeminiCompleter {
	t.Helper()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "k",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: url + "/"},
	})
	require.NoError(t, err)
	return &GeminiCompleter{client: client, model: DefaultGeminiModel, timeout: timeout}
}

func TestGeminiCompleter_CallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestGemini(t, srv.URL, 50*time.Millisecond).Complete(context.Background(), ChatRequest{Prompt: "Taxi 30 lei"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewGeminiCompleter_Timeout(t *testing.T) {
	g, err := NewGeminiCompleter(context.Background(), config.LLMConfig{APIKey: "k", Model: "llama"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, g.model)
	assert.Equal(t, 20*time.Second, g.timeout)

	g, err = NewGeminiCompleter(context.Background(), config.LLMConfig{APIKey: "k", Model: "gemini-2.0-flash", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", g.model)
	assert.Equal(t, 5*time.Second, g.timeout)
}
