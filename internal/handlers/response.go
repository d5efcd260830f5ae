package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edimy/tutoring-backend/internal/middleware"
	"github.com/edimy/tutoring-backend/internal/services"
	"github.com/edimy/tutoring-backend/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists || userCtx.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}

// clientMeta collects the request details attached to payment audits
func clientMeta(c *gin.Context) *services.ClientMeta {
	return &services.ClientMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}
