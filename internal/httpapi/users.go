package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the authenticated account surface.
type UserHandler struct{}

// NewUserHandler constructs a UserHandler.
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	user := contextUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"is_pro":     user.IsPro,
		"active":     user.Active,
		"created_at": user.CreatedAt,
	})
}
