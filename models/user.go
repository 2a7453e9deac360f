package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
)

// User is a factory operator or supervisor. Workers authenticate through the
// auth collaborator (JWT); the production core only ever sees the resolved id.
type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	Username   string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Role       UserRole  `gorm:"type:enum('A','S','W');default:W" json:"role"`
	IsActive   *bool     `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	BusinessId string   `json:"business_id"`
	Username   string   `json:"username" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Password   string   `json:"password" binding:"required"`
	Role       UserRole `json:"role"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleWorker
	}

	user := User{
		BusinessId: input.BusinessId,
		Username:   input.Username,
		Name:       input.Name,
		Password:   string(hashed),
		Role:       role,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a signed JWT.
func Login(ctx context.Context, username string, password string) (string, *User, error) {
	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return "", nil, errors.New("invalid username or password")
	}
	if user.IsActive == nil || !*user.IsActive {
		return "", nil, errors.New("user is deactivated")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", nil, errors.New("invalid username or password")
	}
	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
