package admin

import (
	"net/http"

	"github.com/film4u/film4u-ai/internal/config"
	handlers "github.com/film4u/film4u-ai/internal/http/api/admin/handlers"
	"github.com/film4u/film4u-ai/internal/http/api/admin/permissions"
	"github.com/film4u/film4u-ai/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(jwtCfg))
	authed.Use(adminPermissionMiddleware())

	quotaHandler := handlers.NewQuotaHandler(db)
	authed.GET("/quotas", quotaHandler.List)
	authed.POST("/quotas", quotaHandler.Create)
	authed.GET("/quotas/:id", quotaHandler.Get)
	authed.POST("/quotas/:id/block", quotaHandler.Block)
	authed.POST("/quotas/:id/unblock", quotaHandler.Unblock)
	authed.POST("/quotas/:id/reset", quotaHandler.Reset)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Set)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads the role's permissions.
func adminAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token, ok := security.BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, errJWT := security.ParseAccessToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		adminPermissions := permissions.ForRole(claims.Role)
		if len(adminPermissions) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set("adminSubject", claims.UserID())
		c.Set("adminRole", claims.Role)
		c.Set("adminPermissions", adminPermissions)
		c.Next()
	}
}

// adminPermissionMiddleware checks the matched route against the caller's permissions.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Get("adminPermissions")
		granted, _ := raw.([]string)
		key := permissions.Key(c.Request.Method, c.FullPath())
		if !permissions.HasPermission(granted, key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}
