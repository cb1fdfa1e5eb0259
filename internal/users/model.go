package users

import (
	"time"

	"github.com/modular-rag/backend/internal/provider"
)

// Role classifies an account's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleDemo  Role = "demo"
)

// User is the canonical account record. The (social_provider, social_id)
// pair is globally unique; the surrogate id is used everywhere else.
type User struct {
	ID             string     `gorm:"column:id;primaryKey;size:36"`
	SocialID       string     `gorm:"column:social_id;size:190;not null;uniqueIndex:uq_social_account,priority:2"`
	SocialProvider string     `gorm:"column:social_provider;size:32;not null;uniqueIndex:uq_social_account,priority:1"`
	Email          string     `gorm:"column:email;size:320;index"`
	Username       string     `gorm:"column:username;size:255;index"`
	FullName       string     `gorm:"column:full_name;size:255"`
	Nickname       string     `gorm:"column:nickname;size:255"`
	ProfileImage   string     `gorm:"column:profile_image;size:512"`
	Gender         string     `gorm:"column:gender;size:16"`
	BirthDate      *time.Time `gorm:"column:birth_date"`
	PhoneNumber    string     `gorm:"column:phone_number;size:20"`
	Address        string     `gorm:"column:address;size:255"`
	AgeRange       string     `gorm:"column:age_range;size:10"`
	Locale         string     `gorm:"column:locale;size:10"`
	Role           Role       `gorm:"column:role;size:16;default:user"`
	IsActive       bool       `gorm:"column:is_active;default:true"`
	LastLogin      *time.Time `gorm:"column:last_login"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing canonical accounts.
func (User) TableName() string {
	return "users"
}

// Provider returns the typed provider tag stored on the record.
func (u *User) Provider() provider.Provider {
	return provider.Provider(u.SocialProvider)
}
