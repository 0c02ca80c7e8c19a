package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// 消息类型
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message 聊天消息
// MediaKeys 保存对象存储中的媒体键；PresignedURL 在每次读取时重新生成，不持久化
type Message struct {
	Content       string      `json:"content"`
	Role          MessageRole `json:"role"`
	MessageType   string      `json:"message_type"`
	MediaKeys     []string    `json:"media_keys,omitempty"`
	PresignedURLs []string    `json:"presigned_urls,omitempty"`
	LLMModel      string      `json:"llm_model"`
}

// Chat 会话文档
// 复合主键 (chat_id, timestamp)，一旦创建不可变；消息序列只追加
type Chat struct {
	ChatID    string    `json:"chat_id"`
	Timestamp float64   `json:"timestamp"`
	UserEmail string    `json:"user_email"`
	Messages  []Message `json:"messages"`
}

// AllMediaKeys 收集会话中所有消息引用的媒体键
func (c *Chat) AllMediaKeys() []string {
	var keys []string
	for _, msg := range c.Messages {
		keys = append(keys, msg.MediaKeys...)
	}
	return keys
}

// ChatPage 按属主分页的查询结果
// NextCursor 为空表示没有后续页
type ChatPage struct {
	Items      []*Chat `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// NewChatID 生成新的会话ID
func NewChatID() string {
	return uuid.New().String()
}

// NowTimestamp 生成会话创建时间戳（秒，保留小数）
func NowTimestamp() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
