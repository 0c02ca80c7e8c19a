// Package repository 会话存储 Redis 行为测试
// 用内嵌的 miniredis 跑真实的 Lua 脚本与分页查询
package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/gptbundle/internal/model"
)

func newRedisRepo(t *testing.T) *ChatRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewChatRepository(rdb)
}

func testChat(chatID string, ts float64, owner, content string) *model.Chat {
	return &model.Chat{
		ChatID:    chatID,
		Timestamp: ts,
		UserEmail: owner,
		Messages: []model.Message{
			{Content: content, Role: model.RoleUser, MessageType: model.MessageTypeText},
		},
	}
}

// ========== 条件创建脚本测试 ==========

func TestCreate_RoundTrip(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testChat("c1", 100.5, "alice@example.com", "hi")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	chat, err := repo.Get(ctx, "c1", 100.5, "alice@example.com")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if chat == nil {
		t.Fatal("Get() should find the created chat")
	}
	if chat.ChatID != "c1" || chat.Timestamp != 100.5 || chat.UserEmail != "alice@example.com" {
		t.Errorf("chat identity = %q/%v/%q", chat.ChatID, chat.Timestamp, chat.UserEmail)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", chat.Messages)
	}
}

func TestCreate_ExistingKeyIsNotOverwritten(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testChat("c1", 100.5, "alice@example.com", "first")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	err := repo.Create(ctx, testChat("c1", 100.5, "mallory@example.com", "second"))
	if !errors.Is(err, model.ErrChatAlreadyExists) {
		t.Fatalf("duplicate Create() = %v, want ErrChatAlreadyExists", err)
	}

	// 落败的创建不能写入任何东西
	chat, err := repo.Get(ctx, "c1", 100.5, "alice@example.com")
	if err != nil || chat == nil {
		t.Fatalf("Get() = %v, %v", chat, err)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].Content != "first" {
		t.Errorf("losing create leaked writes: %+v", chat.Messages)
	}
}

// ========== 追加脚本测试 ==========

func TestAppend_OwnerChecked(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testChat("c1", 100.5, "alice@example.com", "hi")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	ok, err := repo.Append(ctx, "c1", 100.5, []model.Message{
		{Content: "reply", Role: model.RoleAssistant, MessageType: model.MessageTypeText},
	}, "alice@example.com")
	if err != nil || !ok {
		t.Fatalf("owner Append() = %v, %v, want true", ok, err)
	}

	ok, err = repo.Append(ctx, "c1", 100.5, []model.Message{
		{Content: "intruder", Role: model.RoleUser, MessageType: model.MessageTypeText},
	}, "mallory@example.com")
	if err != nil {
		t.Fatalf("foreign Append() unexpected error: %v", err)
	}
	if ok {
		t.Error("foreign Append() should be rejected")
	}

	ok, err = repo.Append(ctx, "missing", 1, []model.Message{
		{Content: "x", Role: model.RoleUser, MessageType: model.MessageTypeText},
	}, "alice@example.com")
	if err != nil || ok {
		t.Errorf("Append() to missing chat = %v, %v, want false", ok, err)
	}

	chat, _ := repo.Get(ctx, "c1", 100.5, "alice@example.com")
	if len(chat.Messages) != 2 {
		t.Errorf("chat should hold user + assistant only, got %d messages", len(chat.Messages))
	}
	if chat.Messages[1].Content != "reply" {
		t.Errorf("appended message = %q, want 'reply'", chat.Messages[1].Content)
	}
}

// ========== 删除脚本测试 ==========

func TestDelete_OwnerChecked(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testChat("c1", 100.5, "alice@example.com", "hi")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	deleted, err := repo.Delete(ctx, "c1", 100.5, "mallory@example.com")
	if err != nil {
		t.Fatalf("foreign Delete() unexpected error: %v", err)
	}
	if deleted {
		t.Error("foreign Delete() should be rejected")
	}
	if chat, _ := repo.Get(ctx, "c1", 100.5, "alice@example.com"); chat == nil {
		t.Fatal("rejected delete must not remove the chat")
	}

	deleted, err = repo.Delete(ctx, "c1", 100.5, "alice@example.com")
	if err != nil || !deleted {
		t.Fatalf("owner Delete() = %v, %v, want true", deleted, err)
	}
	if chat, _ := repo.Get(ctx, "c1", 100.5, "alice@example.com"); chat != nil {
		t.Error("chat should be gone after delete")
	}
	page, err := repo.ListByOwner(ctx, "alice@example.com", 10, "")
	if err != nil {
		t.Fatalf("ListByOwner() unexpected error: %v", err)
	}
	if len(page.Items) != 0 {
		t.Error("owner index entry should be removed with the chat")
	}

	// 再删一次是幂等的 false
	deleted, err = repo.Delete(ctx, "c1", 100.5, "alice@example.com")
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v, want false", deleted, err)
	}
}

// ========== 分页测试 ==========

func seedChats(t *testing.T, repo *ChatRepository, owner string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		chatID := string(rune('a' + i))
		ts := 100.0 + float64(i)
		if err := repo.Create(ctx, testChat(chatID, ts, owner, "msg")); err != nil {
			t.Fatalf("seed Create(%s) unexpected error: %v", chatID, err)
		}
	}
}

func TestListByOwner_PaginatesNewestFirst(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()
	seedChats(t, repo, "alice@example.com", 5)

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		page, err := repo.ListByOwner(ctx, "alice@example.com", 2, cursor)
		if err != nil {
			t.Fatalf("ListByOwner() unexpected error: %v", err)
		}
		for i, chat := range page.Items {
			if seen[chat.ChatID] {
				t.Errorf("chat %q returned twice", chat.ChatID)
			}
			seen[chat.ChatID] = true
			if i > 0 && page.Items[i-1].Timestamp < chat.Timestamp {
				t.Error("page should be ordered newest first")
			}
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 5 {
		t.Errorf("pagination returned %d distinct chats, want 5", len(seen))
	}
	if pages != 3 {
		t.Errorf("5 chats at limit 2 should take 3 pages, got %d", pages)
	}
}

func TestListByOwner_DeletedCursorResumesByScore(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()
	seedChats(t, repo, "alice@example.com", 5)

	first, err := repo.ListByOwner(ctx, "alice@example.com", 2, "")
	if err != nil {
		t.Fatalf("ListByOwner() unexpected error: %v", err)
	}
	if first.NextCursor == "" {
		t.Fatal("first page should carry a cursor")
	}

	// 游标指向的会话在两页之间被删除
	last := first.Items[len(first.Items)-1]
	if deleted, err := repo.Delete(ctx, last.ChatID, last.Timestamp, "alice@example.com"); err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v, want true", deleted, err)
	}

	seen := make(map[string]bool)
	for _, chat := range first.Items {
		seen[chat.ChatID] = true
	}
	cursor := first.NextCursor
	for cursor != "" {
		page, err := repo.ListByOwner(ctx, "alice@example.com", 2, cursor)
		if err != nil {
			t.Fatalf("ListByOwner() unexpected error: %v", err)
		}
		for _, chat := range page.Items {
			if seen[chat.ChatID] {
				t.Errorf("chat %q returned twice after cursor deletion", chat.ChatID)
			}
			seen[chat.ChatID] = true
		}
		cursor = page.NextCursor
	}

	// 删除游标不截断剩余页：其余 4 个会话都要拿到
	if len(seen) != 5 {
		t.Errorf("got %d distinct chats, want all 5 seeded (cursor chat seen on page 1)", len(seen))
	}
}
