package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	StoreId   string    `gorm:"index" json:"store_id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	ImageUrl  string    `json:"image_url"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('ADMIN','SALES_AGENT','LOGISTICS_AGENT','CONSUMER');default:CONSUMER" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	StoreId  string   `json:"store_id"`
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	ImageUrl string   `json:"image_url"`
	Password string   `json:"password" binding:"required"`
	IsActive *bool    `json:"is_active" binding:"required"`
	Role     UserRole `json:"role" binding:"required"`
}

/*
caches:
	User:$username
	Tokens:$username (set)
*/

func (user User) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		return err
	}
	return nil
}

func (result *User) PrepareGive() {
	result.Password = ""
}

type LoginInfo struct {
	Token     string   `json:"token"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
	StoreId   string   `json:"store_id"`
	StoreName string   `json:"store_name"`
	Timezone  string   `json:"timezone"`
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var err error
	var result LoginInfo

	user := User{}

	// get User info
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err != nil {
			return &result, errors.New("invalid username or password")
		}
	}

	// check login credentials
	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return &result, errors.New("invalid username or password")
	}
	if user.IsActive == nil || !*user.IsActive {
		return &result, errors.New("account is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role), user.StoreId)
	if err != nil {
		return &result, err
	}

	result.Token = token
	result.Name = user.Name
	result.Role = user.Role
	result.StoreId = user.StoreId

	if user.StoreId != "" {
		store, err := GetStore(ctx, user.StoreId)
		if err == nil {
			result.StoreName = store.Name
			result.Timezone = store.Timezone
		}
	}

	// cache user + track issued token
	if err := config.SetRedisObject("User:"+username, &user, 0); err != nil {
		return &result, err
	}
	if err := config.AddRedisSet("Tokens:"+username, token); err != nil {
		return &result, err
	}
	lifespan, _ := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if lifespan <= 0 {
		lifespan = 24
	}
	if err := config.SetRedisValue("Token:"+token, username, time.Duration(lifespan)*time.Hour); err != nil {
		return &result, err
	}

	return &result, nil
}

// Logout destroys the current session token.
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	if err := config.RemoveRedisKey("Token:" + fmt.Sprint(token)); err != nil {
		return false, nil
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+userName, token); err != nil {
		return false, err
	}
	return true, nil
}

func CreateUser(ctx context.Context, input NewUser) (*User, error) {
	db := config.GetDB()

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		return nil, errors.New("username is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, errors.New("invalid phone number")
		}
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		StoreId:  input.StoreId,
		Username: html.EscapeString(input.Username),
		Name:     input.Name,
		Email:    utils.NilIfEmpty(input.Email),
		Phone:    input.Phone,
		ImageUrl: input.ImageUrl,
		Password: string(hashed),
		IsActive: input.IsActive,
		Role:     input.Role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

// GetUser fetches by id within the caller's store scope.
func GetUser(ctx context.Context, id int) (*User, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	user, err := utils.FetchModel[User](ctx, storeId, id)
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return user, nil
}

func ToggleUserActive(ctx context.Context, id int, isActive bool) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := db.WithContext(ctx).Model(&user).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}
