package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/ashwinyue/gptbundle/internal/model"
	"github.com/ashwinyue/gptbundle/internal/service/media"
)

// 实时交换的事件类型
// 每个回合按序产出：可选的 chat_created、零或多个 token、恰好一个终止事件
const (
	EventChatCreated    = "chat_created"
	EventToken          = "token"
	EventStreamFinished = "stream_finished"
	EventError          = "error"
)

// Event 实时交换事件
type Event struct {
	Type      string  `json:"type"`
	ChatID    string  `json:"chat_id,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Content   string  `json:"content,omitempty"`
}

// TurnRequest 一个用户回合
// ChatID/Timestamp 为空表示新会话，由服务端分配
type TurnRequest struct {
	UserMessage model.Message `json:"user_message"`
	ChatID      string        `json:"chat_id"`
	Timestamp   float64       `json:"timestamp"`
}

// StreamTurn 处理一个实时回合，事件经通道送出
// 回合内的任何失败都以终止 error 事件结束，不关闭交换本身；
// 通道在终止事件后关闭。消费端取消 ctx 后生产协程随之退出，
// 不会卡在无人读取的通道上
func (s *Service) StreamTurn(ctx context.Context, owner string, turn *TurnRequest) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		s.runTurn(ctx, owner, turn, out)
	}()
	return out
}

// emit 送出一个事件，消费端已放弃（ctx 取消）时返回 false
func emit(ctx context.Context, out chan<- Event, event Event) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) runTurn(ctx context.Context, owner string, turn *TurnRequest, out chan<- Event) {
	userMessage := turn.UserMessage

	// 附件从临时命名空间迁入永久命名空间
	if len(userMessage.MediaKeys) > 0 {
		moved := make([]string, 0, len(userMessage.MediaKeys))
		for _, key := range userMessage.MediaKeys {
			dst := media.PermanentKey(key)
			if err := s.media.Move(ctx, key, dst); err != nil {
				log.Printf("failed to move media %s: %v", key, err)
				emit(ctx, out, Event{Type: EventError, Content: "There was an error, please try again later."})
				return
			}
			moved = append(moved, dst)
		}
		userMessage.MediaKeys = moved
	}

	chatID := turn.ChatID
	ts := turn.Timestamp
	isNew := chatID == "" || ts <= 0
	if isNew {
		chatID = model.NewChatID()
		ts = model.NowTimestamp()
	}

	chat := &model.Chat{
		ChatID:    chatID,
		Timestamp: ts,
		UserEmail: owner,
		Messages:  []model.Message{userMessage},
	}

	err := s.store.Create(ctx, chat)
	switch {
	case err == nil:
		if !emit(ctx, out, Event{Type: EventChatCreated, ChatID: chatID, Timestamp: ts}) {
			return
		}
		s.indexNew(ctx, chat)
	case errors.Is(err, model.ErrChatAlreadyExists):
		ok, appendErr := s.store.Append(ctx, chatID, ts, []model.Message{userMessage}, owner)
		if appendErr != nil {
			log.Printf("failed to append to chat %s: %v", chatID, appendErr)
			emit(ctx, out, Event{Type: EventError, Content: "There was an error, please try again later."})
			return
		}
		if !ok {
			emit(ctx, out, Event{Type: EventError, Content: "Failed to append message to existing chat"})
			return
		}
	default:
		log.Printf("failed to create chat %s: %v", chatID, err)
		emit(ctx, out, Event{Type: EventError, Content: "There was an error, please try again later."})
		return
	}

	full, err := s.store.Get(ctx, chatID, ts, owner)
	if err != nil || full == nil {
		log.Printf("failed to load chat %s for completion: %v", chatID, err)
		emit(ctx, out, Event{Type: EventError, Content: "There was an error, please try again later."})
		return
	}

	reader, err := s.completer.StreamText(ctx, full)
	if err != nil {
		log.Printf("failed to start completion for chat %s: %v", chatID, err)
		emit(ctx, out, Event{Type: EventError, Content: "The LLM had an error, please try again later."})
		return
	}
	defer reader.Close()

	// 逐 token 转发并累积助手消息
	var content strings.Builder
	for {
		chunk, recvErr := reader.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			log.Printf("completion stream failed for chat %s: %v", chatID, recvErr)
			emit(ctx, out, Event{Type: EventError, Content: "The LLM had an error, please try again later."})
			return
		}
		if chunk.Content == "" {
			continue
		}
		content.WriteString(chunk.Content)
		if !emit(ctx, out, Event{Type: EventToken, Content: chunk.Content}) {
			return
		}
	}

	assistant := model.Message{
		Content:     content.String(),
		Role:        model.RoleAssistant,
		MessageType: model.MessageTypeText,
		LLMModel:    userMessage.LLMModel,
	}

	// token 已经发给客户端，落库失败只记录日志，仍然发送结束信号
	if ok, appendErr := s.store.Append(ctx, chatID, ts, []model.Message{assistant}, owner); appendErr != nil || !ok {
		log.Printf("failed to persist assistant message for chat %s: %v", chatID, appendErr)
		emit(ctx, out, Event{Type: EventStreamFinished})
		return
	}

	if updated, getErr := s.store.Get(ctx, chatID, ts, owner); getErr == nil && updated != nil {
		s.reindex(ctx, updated)
	}

	emit(ctx, out, Event{Type: EventStreamFinished})
}
