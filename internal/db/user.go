package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 定义了用户模型
// Email 唯一，FirstName/LastName 仅用于展示
type User struct {
	gorm.Model
	Username     string `gorm:"size:50;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	FirstName    string `gorm:"size:100"`
	LastName     string `gorm:"size:100"`
}

// EnsureUser 存在性检查：若提供的邮箱与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的用户。
// 用于开发环境的演示账号初始化。
func EnsureUser(username, email, password string) error {
	trimmedUser := strings.TrimSpace(username)
	trimmedEmail := strings.TrimSpace(email)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedEmail == "" || trimmedPassword == "" {
		return nil
	}
	if trimmedUser == "" {
		trimmedUser = trimmedEmail
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("email = ?", trimmedEmail).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&User{Username: trimmedUser, Email: trimmedEmail, PasswordHash: string(hashed)}).Error
	}

	return nil
}
