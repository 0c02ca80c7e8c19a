package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/gptbundle/internal/model"
)

// 会话文档的存储布局：
//   chat:{id}:{ts}           HASH  chat_id / timestamp / user_email
//   chat:{id}:{ts}:messages  LIST  JSON 编码的消息，只追加
//   user_chats:{email}       ZSET  member = "{id}:{ts}"，score = timestamp
const (
	chatKeyPrefix    = "chat:"
	ownerIndexPrefix = "user_chats:"
	defaultPageSize  = 20
	maxPageSize      = 100
)

// createScript 条件创建：键已存在时不做任何写入
// 返回 1 表示创建成功，0 表示键已被占用
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'chat_id', ARGV[1], 'timestamp', ARGV[2], 'user_email', ARGV[3])
for i = 5, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
return 1
`)

// appendScript 属主校验 + 追加消息，整体原子执行
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'user_email') ~= ARGV[1] then
  return 0
end
for i = 2, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
return 1
`)

// deleteScript 属主校验 + 删除文档和二级索引项
var deleteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'user_email') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[2])
return 1
`)

// ChatRepository 会话文档数据访问（Redis）
type ChatRepository struct {
	rdb redis.UniversalClient
}

// NewChatRepository 创建会话仓库
func NewChatRepository(rdb redis.UniversalClient) *ChatRepository {
	return &ChatRepository{rdb: rdb}
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

func chatMember(chatID string, ts float64) string {
	return chatID + ":" + formatTimestamp(ts)
}

func chatKey(chatID string, ts float64) string {
	return chatKeyPrefix + chatMember(chatID, ts)
}

func messagesKey(chatID string, ts float64) string {
	return chatKey(chatID, ts) + ":messages"
}

func ownerIndexKey(owner string) string {
	return ownerIndexPrefix + owner
}

// Create 条件创建会话文档
// (chat_id, timestamp) 已存在时返回 model.ErrChatAlreadyExists
func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	member := chatMember(chat.ChatID, chat.Timestamp)
	args := make([]interface{}, 0, 4+len(chat.Messages))
	args = append(args, chat.ChatID, formatTimestamp(chat.Timestamp), chat.UserEmail, member)
	for _, msg := range chat.Messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		args = append(args, string(data))
	}

	keys := []string{
		chatKey(chat.ChatID, chat.Timestamp),
		messagesKey(chat.ChatID, chat.Timestamp),
		ownerIndexKey(chat.UserEmail),
	}
	created, err := createScript.Run(ctx, r.rdb, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	if created == 0 {
		return model.ErrChatAlreadyExists
	}
	return nil
}

// Get 获取会话；不存在或属主不匹配时返回 nil
func (r *ChatRepository) Get(ctx context.Context, chatID string, ts float64, owner string) (*model.Chat, error) {
	fields, err := r.rdb.HGetAll(ctx, chatKey(chatID, ts)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	// 授权在数据层强制：属主不符视同不存在
	if fields["user_email"] != owner {
		return nil, nil
	}

	raw, err := r.rdb.LRange(ctx, messagesKey(chatID, ts), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chat messages: %w", err)
	}

	messages := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}

	timestamp, err := strconv.ParseFloat(fields["timestamp"], 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt chat timestamp: %w", err)
	}

	return &model.Chat{
		ChatID:    fields["chat_id"],
		Timestamp: timestamp,
		UserEmail: fields["user_email"],
		Messages:  messages,
	}, nil
}

// ListByOwner 按属主分页列出会话，最新的在前
// cursor 是上一页最后一项的索引成员，原样传回即可取下一页
func (r *ChatRepository) ListByOwner(ctx context.Context, owner string, limit int, cursor string) (*model.ChatPage, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	indexKey := ownerIndexKey(owner)
	start := int64(0)
	if cursor != "" {
		rank, err := r.rdb.ZRevRank(ctx, indexKey, cursor).Result()
		if err == redis.Nil {
			// 游标指向的会话已被删除，按其 score 续页，既不重复也不截断
			_, ts, perr := parseMember(cursor)
			if perr != nil {
				return nil, perr
			}
			members, rangeErr := r.rdb.ZRevRangeByScore(ctx, indexKey, &redis.ZRangeBy{
				Min:   "-inf",
				Max:   "(" + formatTimestamp(ts),
				Count: int64(limit) + 1,
			}).Result()
			if rangeErr != nil {
				return nil, fmt.Errorf("failed to list chats: %w", rangeErr)
			}
			return r.buildPage(ctx, owner, members, limit)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		start = rank + 1
	}

	// 多取一条用于判断是否还有下一页
	members, err := r.rdb.ZRevRange(ctx, indexKey, start, start+int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return r.buildPage(ctx, owner, members, limit)
}

func (r *ChatRepository) buildPage(ctx context.Context, owner string, members []string, limit int) (*model.ChatPage, error) {
	nextCursor := ""
	if len(members) > limit {
		members = members[:limit]
		nextCursor = members[limit-1]
	}

	items := make([]*model.Chat, 0, len(members))
	for _, member := range members {
		chatID, ts, err := parseMember(member)
		if err != nil {
			return nil, err
		}
		chat, err := r.Get(ctx, chatID, ts, owner)
		if err != nil {
			return nil, err
		}
		if chat != nil {
			items = append(items, chat)
		}
	}

	return &model.ChatPage{Items: items, NextCursor: nextCursor}, nil
}

// Append 原子追加消息；会话不存在或属主不匹配时返回 false
func (r *ChatRepository) Append(ctx context.Context, chatID string, ts float64, messages []model.Message, owner string) (bool, error) {
	if len(messages) == 0 {
		return true, nil
	}

	args := make([]interface{}, 0, 1+len(messages))
	args = append(args, owner)
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return false, fmt.Errorf("failed to marshal message: %w", err)
		}
		args = append(args, string(data))
	}

	keys := []string{chatKey(chatID, ts), messagesKey(chatID, ts)}
	appended, err := appendScript.Run(ctx, r.rdb, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to append messages: %w", err)
	}
	return appended == 1, nil
}

// Delete 删除会话；不存在或属主不匹配时返回 false
func (r *ChatRepository) Delete(ctx context.Context, chatID string, ts float64, owner string) (bool, error) {
	keys := []string{
		chatKey(chatID, ts),
		messagesKey(chatID, ts),
		ownerIndexKey(owner),
	}
	deleted, err := deleteScript.Run(ctx, r.rdb, keys, owner, chatMember(chatID, ts)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}
	return deleted == 1, nil
}

func parseMember(member string) (string, float64, error) {
	idx := strings.LastIndex(member, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("corrupt index member: %q", member)
	}
	ts, err := strconv.ParseFloat(member[idx+1:], 64)
	if err != nil {
		return "", 0, fmt.Errorf("corrupt index member %q: %w", member, err)
	}
	return member[:idx], ts, nil
}
