package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	a "github.com/zipplatformofficial/zip-platform/pkg/auth"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/service"
)

func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok := strings.TrimPrefix(h, "Bearer ")
		claims, err := a.ParseValidate(tok)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("sub", claims.Sub)
		c.Set("role", claims.Role)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, _ := c.Get("role")
		role, _ := v.(string)
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	sub, _ := c.Get("sub")
	role, _ := c.Get("role")
	id, _ := sub.(string)
	r, _ := role.(string)
	return service.Actor{ID: id, Role: r}
}
