package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/auth"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, expires time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(method, auth.Claims{
		Sub: "dashboard",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/rules", auth.Middleware(secret), func(c *gin.Context) {
		claims, ok := auth.GetClaims(c)
		if ok {
			c.String(http.StatusOK, claims.Sub)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK, body: "dashboard"},
		{name: "lowercase scheme", header: "bearer " + valid, want: http.StatusOK, body: "dashboard"},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-token", want: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "expired",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), time.Now().Add(-time.Hour)),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "unsigned",
			header: "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, time.Now().Add(time.Hour)),
			want:   http.StatusUnauthorized,
		},
	}

	r := newRouter(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/v1/rules", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestMiddleware_NoSecret(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newRouter("").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rules", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}
