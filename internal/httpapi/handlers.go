package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/audit"
	"wrapdesk/internal/auth"
	"wrapdesk/internal/calls"
	"wrapdesk/internal/contacts"
	"wrapdesk/internal/conversations"
	"wrapdesk/internal/messages"
	"wrapdesk/internal/rbac"
	"wrapdesk/internal/realtime"
	"wrapdesk/internal/reporting"
	"wrapdesk/internal/team"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Passwords auth.Passwords

	Conversations *conversations.Service
	Messages      *messages.Service
	Contacts      *contacts.Service
	Calls         *calls.Service
	Team          *team.Service
	Reporting     *reporting.Service
	Audit         *audit.Service

	Hub       *realtime.Hub
	Heartbeat time.Duration
}

// --- Auth ---

type tokenRequest struct {
	Password string `json:"password" binding:"required"`
	// Name labels the session in the audit log, e.g. the front desk.
	Name string `json:"name"`
}

// Token exchanges a shared dashboard password for a JWT pair.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}
	role, err := h.Passwords.RoleFor(req.Password, rbac.RoleOwner, rbac.RoleStaff)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}
	name := req.Name
	if name == "" {
		name = role
	}
	pair, err := h.Auth.IssuePair(time.Now(), name, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken, "expires_at": pair.ExpiresAt, "role": role})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// ClientIP attaches the resolved client IP for audit records.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFlag(c *gin.Context, key string) bool {
	switch c.Query(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
