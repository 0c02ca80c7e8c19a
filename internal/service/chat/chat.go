// Package chat 组合存储、检索、媒体与补全适配器，实现会话编排
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/gptbundle/internal/model"
)

// ChatStore 会话文档存储接口
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	Get(ctx context.Context, chatID string, ts float64, owner string) (*model.Chat, error)
	ListByOwner(ctx context.Context, owner string, limit int, cursor string) (*model.ChatPage, error)
	Append(ctx context.Context, chatID string, ts float64, messages []model.Message, owner string) (bool, error)
	Delete(ctx context.Context, chatID string, ts float64, owner string) (bool, error)
}

// SearchIndex 检索索引接口
type SearchIndex interface {
	Index(ctx context.Context, chat *model.Chat) error
	Reindex(ctx context.Context, chat *model.Chat) error
	Remove(ctx context.Context, chatID string) error
	Search(ctx context.Context, owner, keyword string) ([]*model.Chat, error)
}

// MediaStore 媒体存储接口
type MediaStore interface {
	Move(ctx context.Context, srcKey, dstKey string) error
	DeleteMany(ctx context.Context, keys []string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Completer 补全客户端接口
type Completer interface {
	StreamText(ctx context.Context, chat *model.Chat) (*schema.StreamReader[*schema.Message], error)
	CompleteImage(ctx context.Context, userMessage *model.Message) (*model.Message, error)
}

// Service 会话编排服务
// 各适配器拥有各自的存储；本服务只协调跨存储副作用
type Service struct {
	store     ChatStore
	search    SearchIndex
	media     MediaStore
	completer Completer
}

// NewService 创建会话编排服务
func NewService(store ChatStore, search SearchIndex, media MediaStore, completer Completer) *Service {
	return &Service{
		store:     store,
		search:    search,
		media:     media,
		completer: completer,
	}
}

// CreateOrAppend 创建会话，(id, timestamp) 已存在时回退为追加
// 处理客户端重试/重连与先前创建竞争的情况；返回落库后的完整会话
func (s *Service) CreateOrAppend(ctx context.Context, owner, chatID string, ts float64, messages []model.Message) (*model.Chat, error) {
	if chatID == "" || ts <= 0 {
		chatID = model.NewChatID()
		ts = model.NowTimestamp()
	}

	chat := &model.Chat{
		ChatID:    chatID,
		Timestamp: ts,
		UserEmail: owner,
		Messages:  messages,
	}

	err := s.store.Create(ctx, chat)
	switch {
	case err == nil:
		s.indexNew(ctx, chat)
	case errors.Is(err, model.ErrChatAlreadyExists):
		ok, appendErr := s.store.Append(ctx, chatID, ts, messages, owner)
		if appendErr != nil {
			return nil, appendErr
		}
		if !ok {
			return nil, fmt.Errorf("%w: chat %s", model.ErrNotFound, chatID)
		}
	default:
		return nil, err
	}

	stored, err := s.store.Get(ctx, chatID, ts, owner)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: chat %s", model.ErrNotFound, chatID)
	}
	s.reindex(ctx, stored)
	return stored, nil
}

// GetChat 读取会话；每次读取为携带媒体键的消息重新生成预签名 URL
func (s *Service) GetChat(ctx context.Context, chatID string, ts float64, owner string) (*model.Chat, error) {
	chat, err := s.store.Get(ctx, chatID, ts, owner)
	if err != nil || chat == nil {
		return chat, err
	}

	for i := range chat.Messages {
		msg := &chat.Messages[i]
		if len(msg.MediaKeys) == 0 {
			continue
		}
		urls := make([]string, 0, len(msg.MediaKeys))
		for _, key := range msg.MediaKeys {
			url, err := s.media.PresignedURL(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve media URL: %w", err)
			}
			urls = append(urls, url)
		}
		msg.PresignedURLs = urls
	}
	return chat, nil
}

// ListChats 分页列出属主的会话
func (s *Service) ListChats(ctx context.Context, owner string, limit int, cursor string) (*model.ChatPage, error) {
	return s.store.ListByOwner(ctx, owner, limit, cursor)
}

// DeleteChat 删除会话
// 主存储删除成功后才尽力清理媒体对象与检索副本；清理失败仅记录日志
func (s *Service) DeleteChat(ctx context.Context, chatID string, ts float64, owner string) (bool, error) {
	chat, err := s.store.Get(ctx, chatID, ts, owner)
	if err != nil {
		return false, err
	}
	if chat == nil {
		return false, nil
	}

	mediaKeys := chat.AllMediaKeys()

	deleted, err := s.store.Delete(ctx, chatID, ts, owner)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := s.media.DeleteMany(ctx, mediaKeys); err != nil {
		log.Printf("failed to delete media for chat %s: %v", chatID, err)
	}
	if err := s.search.Remove(ctx, chatID); err != nil {
		log.Printf("failed to remove search copy of chat %s: %v", chatID, err)
	}
	return true, nil
}

// SearchChats 按关键词检索属主的会话
func (s *Service) SearchChats(ctx context.Context, owner, keyword string) ([]*model.Chat, error) {
	return s.search.Search(ctx, owner, keyword)
}

// ImageTurn 处理一次图像生成回合：生成、落库用户与助手消息
func (s *Service) ImageTurn(ctx context.Context, owner, chatID string, ts float64, userMessage model.Message) (*model.Message, error) {
	assistant, err := s.completer.CompleteImage(ctx, &userMessage)
	if err != nil {
		return nil, err
	}

	if chatID == "" || ts <= 0 {
		chatID = model.NewChatID()
		ts = model.NowTimestamp()
	}

	chat := &model.Chat{
		ChatID:    chatID,
		Timestamp: ts,
		UserEmail: owner,
		Messages:  []model.Message{userMessage},
	}

	err = s.store.Create(ctx, chat)
	switch {
	case err == nil:
		s.indexNew(ctx, chat)
		if ok, appendErr := s.store.Append(ctx, chatID, ts, []model.Message{*assistant}, owner); appendErr != nil || !ok {
			log.Printf("failed to append assistant image message to chat %s: %v", chatID, appendErr)
		}
	case errors.Is(err, model.ErrChatAlreadyExists):
		ok, appendErr := s.store.Append(ctx, chatID, ts, []model.Message{userMessage, *assistant}, owner)
		if appendErr != nil {
			return nil, appendErr
		}
		if !ok {
			return nil, fmt.Errorf("%w: chat %s", model.ErrNotFound, chatID)
		}
	default:
		return nil, err
	}

	if stored, getErr := s.store.Get(ctx, chatID, ts, owner); getErr == nil && stored != nil {
		s.reindex(ctx, stored)
	}
	return assistant, nil
}

// indexNew 尽力把新会话写入检索索引；失败只记录日志，消息已在主存储持久化
func (s *Service) indexNew(ctx context.Context, chat *model.Chat) {
	if err := s.search.Index(ctx, chat); err != nil && !errors.Is(err, model.ErrChatAlreadyExists) {
		log.Printf("failed to index chat %s: %v", chat.ChatID, err)
	}
}

// reindex 尽力刷新检索副本
func (s *Service) reindex(ctx context.Context, chat *model.Chat) {
	if err := s.search.Reindex(ctx, chat); err != nil {
		log.Printf("failed to reindex chat %s: %v", chat.ChatID, err)
	}
}
