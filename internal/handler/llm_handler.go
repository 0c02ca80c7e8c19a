package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/service"
)

// LLMHandler 模型信息处理器
type LLMHandler struct {
	svc *service.Services
}

// NewLLMHandler 创建模型信息处理器
func NewLLMHandler(svc *service.Services) *LLMHandler {
	return &LLMHandler{svc: svc}
}

// ListModels 列出上游可用的模型及其视觉能力
func (h *LLMHandler) ListModels(c *gin.Context) {
	models, err := h.svc.LLM.ListModels(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"models": models})
}
