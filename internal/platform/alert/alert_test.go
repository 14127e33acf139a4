package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramPostsForm(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("elections-prod", "token", "99")
	tg.BaseURL = srv.URL

	require.NoError(t, tg.Alert(context.Background(), "tally diverged"))
	assert.Equal(t, "/bottoken/sendMessage", gotPath)
	assert.Equal(t, "99", gotChat)
	assert.Equal(t, "elections-prod: tally diverged", gotText)
}

func TestTelegramReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := NewTelegram("id", "token", "99")
	tg.BaseURL = srv.URL
	assert.Error(t, tg.Alert(context.Background(), "x"))
}

func TestTelegramWithoutCredentialsIsNoop(t *testing.T) {
	tg := NewTelegram("id", "", "")
	tg.BaseURL = "http://127.0.0.1:0"
	assert.NoError(t, tg.Alert(context.Background(), "x"))
	assert.NoError(t, Log{}.Alert(context.Background(), "x"))
}
