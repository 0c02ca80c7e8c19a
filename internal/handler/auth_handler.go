package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/model"
	"github.com/ashwinyue/gptbundle/internal/service"
	"github.com/ashwinyue/gptbundle/internal/service/auth"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	svc *service.Services
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc *service.Services) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// setAuthCookies 将访问/刷新令牌写入 HttpOnly Cookie
func (h *AuthHandler) setAuthCookies(c *gin.Context, accessToken, refreshToken string) {
	cfg := h.svc.Config.JWT
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, accessToken, cfg.AccessTTLMin*60, "/", "", cfg.CookieSecure, true)
	c.SetCookie(middleware.RefreshTokenCookie, refreshToken, cfg.RefreshTTLMin*60, "/", "", cfg.CookieSecure, true)
}

// clearAuthCookies 清除认证 Cookie
func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	cfg := h.svc.Config.JWT
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", cfg.CookieSecure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", cfg.CookieSecure, true)
}

// Register 用户注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	user, err := h.svc.Auth.Register(&req)
	if err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			Conflict(c, "Email or username already registered")
			return
		}
		Error(c, err)
		return
	}

	Created(c, user.ToUserInfo())
}

// Login 用户登录，签发访问/刷新令牌并写入 Cookie
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	user, err := h.svc.Auth.Login(&req)
	if err != nil {
		Error(c, err)
		return
	}
	if user == nil {
		Forbidden(c, "Incorrect username or password")
		return
	}

	accessToken, err := h.svc.Auth.GenerateAccessToken(user.Email)
	if err != nil {
		Error(c, err)
		return
	}
	refreshToken, err := h.svc.Auth.GenerateRefreshToken(user.Email)
	if err != nil {
		Error(c, err)
		return
	}

	h.setAuthCookies(c, accessToken, refreshToken)
	Success(c, user.ToUserInfo())
}

// Logout 用户登出，清除认证 Cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearAuthCookies(c)
	Success(c, gin.H{"message": "Logged out"})
}

// RefreshToken 用刷新令牌换发新的令牌对
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	refreshToken, err := c.Cookie(middleware.RefreshTokenCookie)
	if err != nil || refreshToken == "" {
		Unauthorized(c, "Missing refresh token")
		return
	}

	email := h.svc.Auth.RefreshSubject(refreshToken)
	if email == "" {
		Unauthorized(c, "Invalid or expired refresh token")
		return
	}

	user, err := h.svc.Auth.GetUserByEmail(email)
	if err != nil {
		Error(c, err)
		return
	}
	if user == nil {
		Unauthorized(c, "User no longer exists")
		return
	}

	newAccess, err := h.svc.Auth.GenerateAccessToken(email)
	if err != nil {
		Error(c, err)
		return
	}
	newRefresh, err := h.svc.Auth.GenerateRefreshToken(email)
	if err != nil {
		Error(c, err)
		return
	}

	h.setAuthCookies(c, newAccess, newRefresh)
	Success(c, gin.H{"message": "Token refreshed"})
}

// GetCurrentUser 获取当前用户
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	user, err := h.svc.Auth.GetUserByEmail(email)
	if err != nil {
		Error(c, err)
		return
	}
	if user == nil {
		NotFound(c, "User not found")
		return
	}

	Success(c, user.ToUserInfo())
}

// DeactivateUser 停用当前用户账号
func (h *AuthHandler) DeactivateUser(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	found, err := h.svc.Auth.DeactivateUser(email)
	if err != nil {
		Error(c, err)
		return
	}
	if !found {
		NotFound(c, "User not found")
		return
	}

	h.clearAuthCookies(c)
	Success(c, gin.H{"message": "Account deactivated"})
}

// DeleteUser 删除当前用户账号
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	found, err := h.svc.Auth.DeleteUser(email)
	if err != nil {
		Error(c, err)
		return
	}
	if !found {
		NotFound(c, "User not found")
		return
	}

	h.clearAuthCookies(c)
	Success(c, gin.H{"message": "Account deleted"})
}
