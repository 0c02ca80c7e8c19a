package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/model"
	"github.com/ashwinyue/gptbundle/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// parseTimestamp 解析路径中的浮点时间戳
func parseTimestamp(c *gin.Context) (float64, bool) {
	ts, err := strconv.ParseFloat(c.Param("timestamp"), 64)
	if err != nil {
		BadRequest(c, "Invalid timestamp: "+c.Param("timestamp"))
		return 0, false
	}
	return ts, true
}

// SaveChatRequest 保存对话请求
type SaveChatRequest struct {
	ChatID    string          `json:"chat_id"`
	Timestamp float64         `json:"timestamp"`
	Messages  []model.Message `json:"messages" binding:"required,min=1"`
}

// SaveChat 创建新对话或向已有对话追加消息
func (h *ChatHandler) SaveChat(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	var req SaveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	chat, err := h.svc.Chat.CreateOrAppend(c.Request.Context(), email, req.ChatID, req.Timestamp, req.Messages)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			NotFound(c, "Chat not found")
			return
		}
		Error(c, err)
		return
	}

	Created(c, chat)
}

// GetChat 获取单个对话，消息中的媒体附带新鲜的预签名地址
func (h *ChatHandler) GetChat(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	ts, ok := parseTimestamp(c)
	if !ok {
		return
	}

	chat, err := h.svc.Chat.GetChat(c.Request.Context(), c.Param("chat_id"), ts, email)
	if err != nil {
		Error(c, err)
		return
	}
	if chat == nil {
		NotFound(c, "Chat not found")
		return
	}

	Success(c, chat)
}

// ListChats 分页列出当前用户的对话，按时间倒序
func (h *ChatHandler) ListChats(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(c, "Invalid limit: "+raw)
			return
		}
		limit = parsed
	}
	cursor := c.Query("cursor")

	page, err := h.svc.Chat.ListChats(c.Request.Context(), email, limit, cursor)
	if err != nil {
		Error(c, err)
		return
	}
	if cursor == "" && len(page.Items) == 0 {
		NotFound(c, "No chats found")
		return
	}

	Success(c, page)
}

// DeleteChat 删除对话以及其媒体文件和搜索索引
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	ts, ok := parseTimestamp(c)
	if !ok {
		return
	}

	deleted, err := h.svc.Chat.DeleteChat(c.Request.Context(), c.Param("chat_id"), ts, email)
	if err != nil {
		Error(c, err)
		return
	}
	if !deleted {
		NotFound(c, "Chat not found")
		return
	}

	Success(c, gin.H{"message": "Chat deleted"})
}

// SearchChats 全文搜索当前用户的对话
func (h *ChatHandler) SearchChats(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	keyword := c.Query("keyword")
	if keyword == "" {
		BadRequest(c, "Missing keyword")
		return
	}

	chats, err := h.svc.Chat.SearchChats(c.Request.Context(), email, keyword)
	if err != nil {
		Error(c, err)
		return
	}
	if len(chats) == 0 {
		NotFound(c, "No chats matched")
		return
	}

	Success(c, chats)
}

// ImageGenerationRequest 图片生成请求
type ImageGenerationRequest struct {
	ChatID    string        `json:"chat_id"`
	Timestamp float64       `json:"timestamp"`
	Message   model.Message `json:"message" binding:"required"`
}

// GenerateImage 生成图片并把助手消息写入对话
func (h *ChatHandler) GenerateImage(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	var req ImageGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	assistant, err := h.svc.Chat.ImageTurn(c.Request.Context(), email, req.ChatID, req.Timestamp, req.Message)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			BadRequest(c, "Message is not an image request")
			return
		}
		Error(c, err)
		return
	}

	Created(c, assistant)
}
