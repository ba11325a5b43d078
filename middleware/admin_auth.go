package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/metrics"
)

const (
	AdminTokenErr = "Admin token does not match"
	AdminTokenKey = "X-Admin-Token"

	bearerPrefix = "Bearer "
)

//AdminToken guards management endpoints. The token is read from X-Admin-Token or Authorization: Bearer
type AdminToken struct {
	Token string
}

func (a *AdminToken) AdminAuth(main gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrResponse("server.admin_token must be configured", nil))
			return
		}

		if !a.matches(requestToken(c)) {
			metrics.UnauthorizedAdminAccess()
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrResponse(AdminTokenErr, nil))
			return
		}
		main(c)
	}
}

func (a *AdminToken) matches(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.Token)) == 1
}

func requestToken(c *gin.Context) string {
	if token := c.GetHeader(AdminTokenKey); token != "" {
		return token
	}
	if authorization := c.GetHeader("Authorization"); strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}
