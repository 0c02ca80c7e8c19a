package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ashwinyue/gptbundle/internal/model"
)

// UserRepository 用户数据访问
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(user *model.User) error {
	err := r.db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.ErrUserAlreadyExists
	}
	return err
}

// GetByEmail 按邮箱获取用户；未激活用户默认排除
func (r *UserRepository) GetByEmail(email string, includeInactive bool) (*model.User, error) {
	query := r.db.Where("email = ?", email)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	var user model.User
	err := query.First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername 按用户名获取激活用户
func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ? AND is_active = ?", username, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 更新用户
func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

// DeleteByEmail 按邮箱删除用户，返回是否删除了记录
func (r *UserRepository) DeleteByEmail(email string) (bool, error) {
	result := r.db.Where("email = ?", email).Delete(&model.User{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
