package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/service"
	"github.com/ashwinyue/gptbundle/internal/service/chat"
)

// WSHandler WebSocket 实时对话处理器
type WSHandler struct {
	svc      *service.Services
	upgrader websocket.Upgrader
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(svc *service.Services) *WSHandler {
	return &WSHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 鉴权由 Cookie 承担，跨域校验交给 CORS 层
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// TextStream 实时文本对话
// 每收到一个回合请求就跑一轮流式生成，事件按序写回；
// 单个回合的失败以 error 事件告知客户端，连接保持
func (h *WSHandler) TextStream(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var turn chat.TurnRequest
		if err := conn.ReadJSON(&turn); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read failed: %v", err)
			}
			return
		}

		if turn.UserMessage.Content == "" && len(turn.UserMessage.MediaKeys) == 0 {
			if err := conn.WriteJSON(chat.Event{
				Type:    chat.EventError,
				Content: "Empty user message",
			}); err != nil {
				return
			}
			continue
		}

		// 写失败（客户端中途断开）时取消回合上下文并清空通道，
		// 让生产协程退出而不是卡在发送上
		turnCtx, cancel := context.WithCancel(c.Request.Context())
		events := h.svc.Chat.StreamTurn(turnCtx, email, &turn)
		for event := range events {
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("websocket write failed: %v", err)
				cancel()
				for range events {
				}
				return
			}
		}
		cancel()
	}
}
