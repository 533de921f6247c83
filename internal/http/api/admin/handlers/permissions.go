package handlers

import (
	"net/http"

	"github.com/film4u/film4u-ai/internal/http/api/admin/permissions"
	"github.com/gin-gonic/gin"
)

// PermissionHandler lists admin permission definitions.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every permission and the ones granted to the caller.
func (h *PermissionHandler) List(c *gin.Context) {
	granted, _ := c.Get("adminPermissions")
	c.JSON(http.StatusOK, gin.H{
		"permissions": permissions.Definitions(),
		"granted":     granted,
	})
}
