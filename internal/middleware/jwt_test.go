package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mtutor/internal/pkg/jwt"
)

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("secret")
	r := gin.New()
	r.Use(OptionalJWTAuth(secret), RequireAdmin())
	r.GET("/admin", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	call := func(token string) string {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Body.String()
	}

	require.NotEqual(t, "ok", call(""))
	require.NotEqual(t, "ok", call("garbage"))

	member, err := jwt.GenerateToken("u1", "", secret, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, "ok", call(member))

	admin, err := jwt.GenerateToken("u2", RoleAdmin, secret, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "ok", call(admin))

	other, err := jwt.GenerateToken("u2", RoleAdmin, []byte("other"), time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, "ok", call(other))
}
