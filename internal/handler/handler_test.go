// Package handler 接口层测试公共设施
package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/config"
	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/model"
	"github.com/ashwinyue/gptbundle/internal/service"
	"github.com/ashwinyue/gptbundle/internal/service/auth"
	"github.com/ashwinyue/gptbundle/internal/service/chat"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ========== 内存后端 ==========

// memUsers 内存用户存储
type memUsers struct {
	byEmail map[string]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: make(map[string]*model.User)}
}

func (m *memUsers) Create(user *model.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return model.ErrUserAlreadyExists
	}
	copied := *user
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *memUsers) GetByEmail(email string, includeInactive bool) (*model.User, error) {
	user, ok := m.byEmail[email]
	if !ok || (!user.IsActive && !includeInactive) {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *memUsers) GetByUsername(username string) (*model.User, error) {
	for _, user := range m.byEmail {
		if user.Username == username && user.IsActive {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Update(user *model.User) error {
	copied := *user
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *memUsers) DeleteByEmail(email string) (bool, error) {
	if _, ok := m.byEmail[email]; !ok {
		return false, nil
	}
	delete(m.byEmail, email)
	return true, nil
}

// memChats 内存会话存储
type memChats struct {
	chats map[string]*model.Chat
}

func newMemChats() *memChats {
	return &memChats{chats: make(map[string]*model.Chat)}
}

func chatKey(chatID string, ts float64) string {
	return fmt.Sprintf("%s:%v", chatID, ts)
}

func (m *memChats) Create(ctx context.Context, c *model.Chat) error {
	key := chatKey(c.ChatID, c.Timestamp)
	if _, ok := m.chats[key]; ok {
		return model.ErrChatAlreadyExists
	}
	copied := *c
	copied.Messages = append([]model.Message(nil), c.Messages...)
	m.chats[key] = &copied
	return nil
}

func (m *memChats) Get(ctx context.Context, chatID string, ts float64, owner string) (*model.Chat, error) {
	c, ok := m.chats[chatKey(chatID, ts)]
	if !ok || c.UserEmail != owner {
		return nil, nil
	}
	copied := *c
	copied.Messages = append([]model.Message(nil), c.Messages...)
	return &copied, nil
}

func (m *memChats) ListByOwner(ctx context.Context, owner string, limit int, cursor string) (*model.ChatPage, error) {
	if limit <= 0 {
		limit = 20
	}
	owned := make([]*model.Chat, 0)
	for _, c := range m.chats {
		if c.UserEmail == owner {
			owned = append(owned, c)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].Timestamp > owned[j].Timestamp })

	start := 0
	if cursor != "" {
		for i, c := range owned {
			if chatKey(c.ChatID, c.Timestamp) == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(owned) {
		return &model.ChatPage{Items: []*model.Chat{}}, nil
	}
	end := start + limit
	if end > len(owned) {
		end = len(owned)
	}
	page := &model.ChatPage{Items: owned[start:end]}
	if end < len(owned) {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = chatKey(last.ChatID, last.Timestamp)
	}
	return page, nil
}

func (m *memChats) Append(ctx context.Context, chatID string, ts float64, messages []model.Message, owner string) (bool, error) {
	c, ok := m.chats[chatKey(chatID, ts)]
	if !ok || c.UserEmail != owner {
		return false, nil
	}
	c.Messages = append(c.Messages, messages...)
	return true, nil
}

func (m *memChats) Delete(ctx context.Context, chatID string, ts float64, owner string) (bool, error) {
	key := chatKey(chatID, ts)
	c, ok := m.chats[key]
	if !ok || c.UserEmail != owner {
		return false, nil
	}
	delete(m.chats, key)
	return true, nil
}

// nopSearch 空操作检索索引
type nopSearch struct{}

func (nopSearch) Index(ctx context.Context, c *model.Chat) error   { return nil }
func (nopSearch) Reindex(ctx context.Context, c *model.Chat) error { return nil }
func (nopSearch) Remove(ctx context.Context, chatID string) error  { return nil }
func (nopSearch) Search(ctx context.Context, owner, keyword string) ([]*model.Chat, error) {
	return nil, nil
}

// nopMedia 空操作媒体存储
type nopMedia struct{}

func (nopMedia) Move(ctx context.Context, srcKey, dstKey string) error { return nil }
func (nopMedia) DeleteMany(ctx context.Context, keys []string) error   { return nil }
func (nopMedia) PresignedURL(ctx context.Context, key string) (string, error) {
	return "https://media.test/" + key, nil
}

// cannedCompleter 预置文本回复的补全客户端
type cannedCompleter struct {
	chunks []string
}

func (c *cannedCompleter) StreamText(ctx context.Context, chat *model.Chat) (*schema.StreamReader[*schema.Message], error) {
	messages := make([]*schema.Message, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		messages = append(messages, &schema.Message{Role: schema.Assistant, Content: chunk})
	}
	return schema.StreamReaderFromArray(messages), nil
}

func (c *cannedCompleter) CompleteImage(ctx context.Context, userMessage *model.Message) (*model.Message, error) {
	if userMessage.MessageType != model.MessageTypeImage {
		return nil, model.ErrInvalidInput
	}
	return &model.Message{
		Content:       userMessage.Content,
		Role:          model.RoleAssistant,
		MessageType:   model.MessageTypeImage,
		MediaKeys:     []string{"permanent/generated/test.png"},
		PresignedURLs: []string{"https://media.test/permanent/generated/test.png"},
	}, nil
}

// ========== 测试环境 ==========

type handlerEnv struct {
	server *httptest.Server
	svc    *service.Services
	users  *memUsers
	chats  *memChats
}

func newHandlerEnv() *handlerEnv {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:        "test-secret",
			AccessTTLMin:  30,
			RefreshTTLMin: 7 * 24 * 60,
		},
	}

	users := newMemUsers()
	chats := newMemChats()
	authSvc := auth.NewService(users, &cfg.JWT)
	chatSvc := chat.NewService(chats, nopSearch{}, nopMedia{}, &cannedCompleter{chunks: []string{"Hello", " world"}})

	svc := &service.Services{
		Auth:   authSvc,
		Chat:   chatSvc,
		Config: cfg,
	}

	// 与路由层相同的挂载方式；直接建引擎以避免包环
	h := NewHandlers(svc)
	requireAuth := middleware.RequireAuth(authSvc)
	engine := gin.New()
	v1 := engine.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.POST("/register", h.Auth.Register)
			users.POST("/login", h.Auth.Login)
			users.POST("/logout", h.Auth.Logout)
			users.GET("/me", requireAuth, h.Auth.GetCurrentUser)
			users.POST("/deactivate", requireAuth, h.Auth.DeactivateUser)
			users.DELETE("/me", requireAuth, h.Auth.DeleteUser)
		}
		v1.POST("/security/refresh-token", h.Auth.RefreshToken)

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
	}

	return &handlerEnv{
		server: httptest.NewServer(engine),
		svc:    svc,
		users:  users,
		chats:  chats,
	}
}

func (e *handlerEnv) close() {
	e.server.Close()
}

// accessCookie 给已注册用户签发访问令牌 Cookie
func (e *handlerEnv) accessCookie(email string) *http.Cookie {
	token, _ := e.svc.Auth.GenerateAccessToken(email)
	return &http.Cookie{Name: middleware.AccessTokenCookie, Value: token}
}

func userTextMessage(content string) model.Message {
	return model.Message{Content: content, Role: model.RoleUser, MessageType: model.MessageTypeText}
}
