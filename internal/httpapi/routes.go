package httpapi

import (
	"github.com/gin-gonic/gin"

	"wrapdesk/internal/rbac"
)

// Register mounts the dashboard API under /v1. Token issuance is public;
// everything else requires authMW.
func (h Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(ClientIP())

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/token", h.Token)
		authGroup.POST("/refresh", h.Refresh)
	}

	api := v1.Group("")
	api.Use(authMW, rbac.RequireAnyRole(rbac.RoleStaff))
	{
		api.GET("/me", h.Me)
		api.GET("/events", h.Events)

		conv := api.Group("/conversations")
		conv.GET("", h.ListConversations)
		conv.GET("/:phone", h.GetConversation)
		conv.POST("/:phone/read", h.MarkRead)
		conv.POST("/:phone/archive", h.Archive)
		conv.POST("/:phone/messages", h.SendMessage)
		conv.GET("/:phone/suggestion", h.Suggestion)
		conv.POST("/:phone/link", h.Link)
		conv.POST("/:phone/customer", h.CreateCustomer)

		api.GET("/calls", h.ListCalls)
		api.GET("/calls/summary", h.CallsSummary)
		api.GET("/calls/:sid", h.GetCall)

		api.GET("/team-phones", h.ListTeamPhones)
	}

	owner := v1.Group("")
	owner.Use(authMW, rbac.RequireAnyRole(rbac.RoleOwner))
	{
		owner.POST("/team-phones", h.SaveTeamPhone)
		owner.GET("/audit", h.ListAudit)
	}
}
