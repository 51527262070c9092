package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTelegramData(t *testing.T) {
	v := url.Values{}
	v.Set("auth_date", "1700000000")
	v.Set("user", `{"id":123456789,"username":"alice"}`)

	data, err := ExtractTelegramData(v.Encode())
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), data.ID)
	assert.Equal(t, "alice", data.Username)
	assert.Equal(t, time.Unix(1700000000, 0), data.AuthDate)

	_, err = ExtractTelegramData("auth_date=oops")
	assert.Error(t, err)
	_, err = ExtractTelegramData("auth_date=1&user=notjson")
	assert.Error(t, err)
}

func TestTelegramAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	valid := url.Values{}
	valid.Set("auth_date", "1700000000")
	valid.Set("user", `{"id":42}`)

	tests := []struct {
		name     string
		debug    bool
		header   string
		wantCode int
		wantUser string
	}{
		{name: "debug accepts unsigned data", debug: true, header: "Telegram " + valid.Encode(), wantCode: http.StatusOK, wantUser: "42"},
		{name: "signature checked outside debug", debug: false, header: "Telegram " + valid.Encode(), wantCode: http.StatusUnauthorized},
		{name: "missing header", debug: true, wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", debug: true, header: "tma " + valid.Encode(), wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewTelegramAuth("bot-token", tt.debug)
			require.Equal(t, "bot-token", a.GetBotToken())
			router := gin.New()
			router.GET("/me", a.TelegramAuthMiddleware(), func(c *gin.Context) {
				c.String(http.StatusOK, UserID(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantUser, w.Body.String())
			}
		})
	}
}
