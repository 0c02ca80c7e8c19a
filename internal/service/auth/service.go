// Package auth 提供密码哈希与令牌签发/校验
package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashwinyue/gptbundle/internal/config"
	"github.com/ashwinyue/gptbundle/internal/model"
)

// 令牌类型
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// UserStore 用户数据访问接口
// 接口定义使 Service 层可以轻松 mock 进行单元测试
type UserStore interface {
	Create(user *model.User) error
	GetByEmail(email string, includeInactive bool) (*model.User, error)
	GetByUsername(username string) (*model.User, error)
	Update(user *model.User) error
	DeleteByEmail(email string) (bool, error)
}

// Service 认证服务
type Service struct {
	users UserStore
	cfg   *config.JWTConfig
}

// NewService 创建认证服务
func NewService(users UserStore, cfg *config.JWTConfig) *Service {
	return &Service{users: users, cfg: cfg}
}

// HashPassword 哈希密码（bcrypt，随机盐）
func (s *Service) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword 校验密码；哈希格式非法时返回 false 而不是报错
func (s *Service) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateAccessToken 签发访问令牌
func (s *Service) GenerateAccessToken(subject string) (string, error) {
	return s.generateToken(subject, TokenTypeAccess, time.Duration(s.cfg.AccessTTLMin)*time.Minute)
}

// GenerateRefreshToken 签发刷新令牌
func (s *Service) GenerateRefreshToken(subject string) (string, error) {
	return s.generateToken(subject, TokenTypeRefresh, time.Duration(s.cfg.RefreshTTLMin)*time.Minute)
}

func (s *Service) generateToken(subject, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
		"type": tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// CurrentUser 解析访问令牌并返回主题（用户邮箱）
// 任何校验失败（过期、格式错误、签名不符、类型不对）都只记录日志并返回空串
func (s *Service) CurrentUser(tokenString string) string {
	return s.tokenSubject(tokenString, TokenTypeAccess)
}

// RefreshSubject 解析刷新令牌并返回主题
func (s *Service) RefreshSubject(tokenString string) string {
	return s.tokenSubject(tokenString, TokenTypeRefresh)
}

func (s *Service) tokenSubject(tokenString, wantType string) string {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		log.Printf("token validation failed: %v", err)
		return ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		log.Printf("token has unexpected claims type")
		return ""
	}

	if tokenType, _ := claims["type"].(string); tokenType != wantType {
		log.Printf("token has unexpected type %q", tokenType)
		return ""
	}

	subject, ok := claims["sub"].(string)
	if !ok {
		log.Printf("token has no subject claim")
		return ""
	}
	return subject
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 注册用户
// 邮箱或用户名已被占用时返回 model.ErrUserAlreadyExists
func (s *Service) Register(req *RegisterRequest) (*model.User, error) {
	existing, err := s.users.GetByEmail(req.Email, true)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, model.ErrUserAlreadyExists
	}

	existing, err = s.users.GetByUsername(req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, model.ErrUserAlreadyExists
	}

	hashed, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
		IsActive:     true,
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login 按用户名登录；凭证无效或账户未激活时返回 nil
func (s *Service) Login(req *LoginRequest) (*model.User, error) {
	user, err := s.users.GetByUsername(req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	if !s.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// GetUserByEmail 获取激活用户
func (s *Service) GetUserByEmail(email string) (*model.User, error) {
	return s.users.GetByEmail(email, false)
}

// DeactivateUser 软删除：翻转激活标记，用户将从查询中排除
func (s *Service) DeactivateUser(email string) (bool, error) {
	user, err := s.users.GetByEmail(email, false)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	user.IsActive = false
	if err := s.users.Update(user); err != nil {
		return false, fmt.Errorf("failed to deactivate user: %w", err)
	}
	return true, nil
}

// ActivateUser 重新激活用户
func (s *Service) ActivateUser(email string) (bool, error) {
	user, err := s.users.GetByEmail(email, true)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	user.IsActive = true
	if err := s.users.Update(user); err != nil {
		return false, fmt.Errorf("failed to activate user: %w", err)
	}
	return true, nil
}

// DeleteUser 硬删除用户
func (s *Service) DeleteUser(email string) (bool, error) {
	return s.users.DeleteByEmail(email)
}
