package users

import (
	"strings"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a registered account. Email is stored lower-cased.
type User struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash     string `gorm:"column:password_hash;size:255;not null"`
	Role             string `gorm:"column:role;size:16;not null;default:USER"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
