package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogauth/internal/logging"
	"blogauth/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protected(tokens *token.Service) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWT(tokens), func(c *gin.Context) {
		_, hasName := c.Get("username")
		c.JSON(http.StatusOK, gin.H{"uuid": UserUUID(c), "has_username": hasName})
	})
	return r
}

func TestJWT(t *testing.T) {
	tokens := token.NewService("secret")
	good, err := tokens.Issue("u-1", "alice", time.Hour)
	require.NoError(t, err)
	expired, err := tokens.Issue("u-1", "alice", -time.Minute)
	require.NoError(t, err)
	foreign, err := token.NewService("other").Issue("u-1", "alice", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"lowercase scheme", "bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", good, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
	}
	r := protected(tokens)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"uuid":"u-1","has_username":false}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error":"UnauthorizedError"`)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(logging.NewJSON(&buf, "info")))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Contains(t, buf.String(), `"path":"/ok"`)
	assert.Contains(t, buf.String(), `"status":204`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
