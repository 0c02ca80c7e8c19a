// Package testutil 提供测试辅助工具
package testutil

import (
	"testing"

	"github.com/ashwinyue/gptbundle/internal/model"
)

// NewTextMessage 构造文本消息
func NewTextMessage(role model.MessageRole, content string) model.Message {
	return model.Message{
		Content:     content,
		Role:        role,
		MessageType: model.MessageTypeText,
	}
}

// NewChat 构造带一条用户消息的对话
func NewChat(chatID string, ts float64, owner, content string) *model.Chat {
	return &model.Chat{
		ChatID:    chatID,
		Timestamp: ts,
		UserEmail: owner,
		Messages:  []model.Message{NewTextMessage(model.RoleUser, content)},
	}
}

// AssertHelper 提供断言相关的测试辅助
type AssertHelper struct {
	t *testing.T
}

// NewAssertHelper 创建断言辅助器
func NewAssertHelper(t *testing.T) *AssertHelper {
	return &AssertHelper{t: t}
}

// NoError 断言没有错误
func (h *AssertHelper) NoError(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("Unexpected error: %v %v", err, msgAndArgs)
	}
}

// Error 断言有错误
func (h *AssertHelper) Error(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("Expected error, got nil")
	}
}

// Equal 断言相等
func (h *AssertHelper) Equal(expected, actual interface{}, msgAndArgs ...interface{}) {
	h.t.Helper()
	if expected != actual {
		h.t.Fatalf("Expected %v, got %v %v", expected, actual, msgAndArgs)
	}
}

// Nil 断言为 nil
func (h *AssertHelper) Nil(v interface{}, msgAndArgs ...interface{}) {
	h.t.Helper()
	if v != nil {
		h.t.Fatalf("Expected nil, got %v %v", v, msgAndArgs)
	}
}

// NotNil 断言非 nil
func (h *AssertHelper) NotNil(v interface{}, msgAndArgs ...interface{}) {
	h.t.Helper()
	if v == nil {
		h.t.Fatal("Expected non-nil, got nil")
	}
}

// True 断言为真
func (h *AssertHelper) True(condition bool, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !condition {
		h.t.Fatalf("Expected true, got false %v", msgAndArgs)
	}
}

// False 断言为假
func (h *AssertHelper) False(condition bool, msgAndArgs ...interface{}) {
	h.t.Helper()
	if condition {
		h.t.Fatalf("Expected false, got true %v", msgAndArgs)
	}
}
