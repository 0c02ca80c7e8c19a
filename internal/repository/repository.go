package repository

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Repositories 仓库集合，用于统一管理所有仓库
// 用户在关系库，会话文档在 Redis
type Repositories struct {
	DB   *gorm.DB
	User *UserRepository
	Chat *ChatRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB, rdb redis.UniversalClient) *Repositories {
	return &Repositories{
		DB:   db,
		User: NewUserRepository(db),
		Chat: NewChatRepository(rdb),
	}
}
