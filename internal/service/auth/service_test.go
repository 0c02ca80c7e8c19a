// Package auth 认证服务单元测试
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ashwinyue/gptbundle/internal/config"
	"github.com/ashwinyue/gptbundle/internal/model"
)

// mockUserStore 内存用户存储
type mockUserStore struct {
	byEmail map[string]*model.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byEmail: make(map[string]*model.User)}
}

func (m *mockUserStore) Create(user *model.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return model.ErrUserAlreadyExists
	}
	copied := *user
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *mockUserStore) GetByEmail(email string, includeInactive bool) (*model.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	if !user.IsActive && !includeInactive {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserStore) GetByUsername(username string) (*model.User, error) {
	for _, user := range m.byEmail {
		if user.Username == username && user.IsActive {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockUserStore) Update(user *model.User) error {
	copied := *user
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *mockUserStore) DeleteByEmail(email string) (bool, error) {
	if _, ok := m.byEmail[email]; !ok {
		return false, nil
	}
	delete(m.byEmail, email)
	return true, nil
}

func newTestService() *Service {
	return NewService(newMockUserStore(), &config.JWTConfig{
		Secret:        "test-secret",
		AccessTTLMin:  30,
		RefreshTTLMin: 7 * 24 * 60,
	})
}

// ========== 密码哈希测试 ==========

func TestHashPassword_DiffersFromPlaintext(t *testing.T) {
	svc := newTestService()

	hashed, err := svc.HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}
	if hashed == "s3cret-password" {
		t.Error("hash should not equal the plaintext password")
	}
	if hashed == "" {
		t.Error("hash should not be empty")
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	svc := newTestService()

	first, _ := svc.HashPassword("same-password")
	second, _ := svc.HashPassword("same-password")

	if first == second {
		t.Error("two hashes of the same password should differ")
	}
}

func TestVerifyPassword(t *testing.T) {
	svc := newTestService()
	hashed, _ := svc.HashPassword("correct-horse")

	if !svc.VerifyPassword("correct-horse", hashed) {
		t.Error("VerifyPassword() should accept the original password")
	}
	if svc.VerifyPassword("wrong-horse", hashed) {
		t.Error("VerifyPassword() should reject a wrong password")
	}
	if svc.VerifyPassword("correct-horse", "not-a-bcrypt-hash") {
		t.Error("VerifyPassword() should reject a malformed hash")
	}
}

// ========== 令牌测试 ==========

func TestAccessToken_RoundTrip(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateAccessToken("alice@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken() unexpected error: %v", err)
	}

	subject := svc.CurrentUser(token)
	if subject != "alice@example.com" {
		t.Errorf("CurrentUser() = %q, want 'alice@example.com'", subject)
	}
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateRefreshToken("alice@example.com")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() unexpected error: %v", err)
	}

	subject := svc.RefreshSubject(token)
	if subject != "alice@example.com" {
		t.Errorf("RefreshSubject() = %q, want 'alice@example.com'", subject)
	}
}

func TestCurrentUser_RejectsRefreshToken(t *testing.T) {
	svc := newTestService()

	refresh, _ := svc.GenerateRefreshToken("alice@example.com")
	if svc.CurrentUser(refresh) != "" {
		t.Error("CurrentUser() should reject a refresh token")
	}

	access, _ := svc.GenerateAccessToken("alice@example.com")
	if svc.RefreshSubject(access) != "" {
		t.Error("RefreshSubject() should reject an access token")
	}
}

func TestCurrentUser_Malformed(t *testing.T) {
	svc := newTestService()

	if svc.CurrentUser("not-a-jwt") != "" {
		t.Error("CurrentUser() should return empty for garbage input")
	}
	if svc.CurrentUser("") != "" {
		t.Error("CurrentUser() should return empty for empty input")
	}
}

func TestCurrentUser_Expired(t *testing.T) {
	svc := newTestService()

	claims := jwt.MapClaims{
		"sub":  "alice@example.com",
		"exp":  time.Now().Add(-time.Hour).Unix(),
		"iat":  time.Now().Add(-2 * time.Hour).Unix(),
		"type": TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if svc.CurrentUser(signed) != "" {
		t.Error("CurrentUser() should reject an expired token")
	}
}

func TestCurrentUser_WrongSecret(t *testing.T) {
	svc := newTestService()

	other := NewService(newMockUserStore(), &config.JWTConfig{
		Secret:        "other-secret",
		AccessTTLMin:  30,
		RefreshTTLMin: 60,
	})
	token, _ := other.GenerateAccessToken("alice@example.com")

	if svc.CurrentUser(token) != "" {
		t.Error("CurrentUser() should reject a token signed with another secret")
	}
}

// ========== 注册/登录测试 ==========

func registerAlice(t *testing.T, svc *Service) *model.User {
	t.Helper()
	user, err := svc.Register(&RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "s3cret-password",
	})
	if err != nil {
		t.Fatalf("Register() unexpected error: %v", err)
	}
	return user
}

func TestRegister(t *testing.T) {
	svc := newTestService()

	user := registerAlice(t, svc)

	if user.ID == "" {
		t.Error("registered user should get an ID")
	}
	if user.PasswordHash == "s3cret-password" {
		t.Error("stored password must be hashed")
	}
	if !user.IsActive {
		t.Error("new user should be active")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	_, err := svc.Register(&RegisterRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "another-password",
	})
	if err != model.ErrUserAlreadyExists {
		t.Errorf("Register() error = %v, want ErrUserAlreadyExists", err)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	_, err := svc.Register(&RegisterRequest{
		Username: "alice",
		Email:    "alice2@example.com",
		Password: "another-password",
	})
	if err != model.ErrUserAlreadyExists {
		t.Errorf("Register() error = %v, want ErrUserAlreadyExists", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	user, err := svc.Login(&LoginRequest{Username: "alice", Password: "s3cret-password"})
	if err != nil {
		t.Fatalf("Login() unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("Login() should succeed with correct credentials")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Login() email = %q, want 'alice@example.com'", user.Email)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	user, err := svc.Login(&LoginRequest{Username: "alice", Password: "wrong"})
	if err != nil {
		t.Fatalf("Login() unexpected error: %v", err)
	}
	if user != nil {
		t.Error("Login() should return nil for a wrong password")
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	svc := newTestService()

	user, err := svc.Login(&LoginRequest{Username: "nobody", Password: "whatever"})
	if err != nil {
		t.Fatalf("Login() unexpected error: %v", err)
	}
	if user != nil {
		t.Error("Login() should return nil for an unknown user")
	}
}

// ========== 账号生命周期测试 ==========

func TestDeactivateAndActivate(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	found, err := svc.DeactivateUser("alice@example.com")
	if err != nil || !found {
		t.Fatalf("DeactivateUser() = %v, %v, want true, nil", found, err)
	}

	// 停用后无法登录
	user, _ := svc.Login(&LoginRequest{Username: "alice", Password: "s3cret-password"})
	if user != nil {
		t.Error("deactivated user should not be able to log in")
	}

	found, err = svc.ActivateUser("alice@example.com")
	if err != nil || !found {
		t.Fatalf("ActivateUser() = %v, %v, want true, nil", found, err)
	}

	user, _ = svc.Login(&LoginRequest{Username: "alice", Password: "s3cret-password"})
	if user == nil {
		t.Error("reactivated user should be able to log in")
	}
}

func TestDeleteUser(t *testing.T) {
	svc := newTestService()
	registerAlice(t, svc)

	found, err := svc.DeleteUser("alice@example.com")
	if err != nil || !found {
		t.Fatalf("DeleteUser() = %v, %v, want true, nil", found, err)
	}

	found, err = svc.DeleteUser("alice@example.com")
	if err != nil {
		t.Fatalf("DeleteUser() unexpected error: %v", err)
	}
	if found {
		t.Error("second DeleteUser() should report not found")
	}
}
