package handler

import (
	"github.com/ashwinyue/gptbundle/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth  *AuthHandler
	Chat  *ChatHandler
	Media *MediaHandler
	LLM   *LLMHandler
	WS    *WSHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:  NewAuthHandler(svc),
		Chat:  NewChatHandler(svc),
		Media: NewMediaHandler(svc),
		LLM:   NewLLMHandler(svc),
		WS:    NewWSHandler(svc),
	}
}
