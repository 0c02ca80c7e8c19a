package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/handler"
	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/service/auth"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, authSvc *auth.Service) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(authSvc)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Users 用户
		users := v1.Group("/users")
		{
			users.POST("/register", h.Auth.Register)
			users.POST("/login", h.Auth.Login)
			users.POST("/logout", h.Auth.Logout)
			users.GET("/me", requireAuth, h.Auth.GetCurrentUser)
			users.POST("/deactivate", requireAuth, h.Auth.DeactivateUser)
			users.DELETE("/me", requireAuth, h.Auth.DeleteUser)
		}

		// Security 令牌
		security := v1.Group("/security")
		{
			security.POST("/refresh-token", h.Auth.RefreshToken)
		}

		// Messaging 对话
		messaging := v1.Group("/messaging", requireAuth)
		{
			messaging.POST("/chat", h.Chat.SaveChat)
			messaging.GET("/chat/:chat_id/:timestamp", h.Chat.GetChat)
			messaging.DELETE("/chat/:chat_id/:timestamp", h.Chat.DeleteChat)
			messaging.GET("/chats", h.Chat.ListChats)
			messaging.GET("/search_chats", h.Chat.SearchChats)
			messaging.POST("/image_generation", h.Chat.GenerateImage)
			messaging.GET("/chat/text_ws", h.WS.TextStream)
		}

		// Media 媒体
		mediaGroup := v1.Group("/media", requireAuth)
		{
			mediaGroup.POST("/upload_media", h.Media.Upload)
		}

		// LLM 模型
		llm := v1.Group("/llm", requireAuth)
		{
			llm.GET("/models", h.LLM.ListModels)
		}
	}

	return r
}
