package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	//TenantHeader carries the business (tenant) id of every API call
	TenantHeader = "X-Business-ID"
	tenantKey    = "tenant_id"
)

//Tenant rejects requests without a tenant id and stores it in the gin context
func Tenant(c *gin.Context) {
	tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
	if tenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrResponse(TenantHeader+" header is required", nil))
		return
	}

	c.Set(tenantKey, tenantID)
	c.Next()
}

//TenantID returns the tenant id stored by Tenant middleware
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
