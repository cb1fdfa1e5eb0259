package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modular-rag/backend/internal/provider"
	"gorm.io/gorm"
)

// ErrNotFound indicates no user matches the given key.
var ErrNotFound = errors.New("users: not found")

// DirectoryConfig describes the dependencies required by the user directory.
type DirectoryConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider func() string
}

// Directory manages canonical accounts keyed by surrogate id, with
// find-or-create resolution by social identity.
type Directory struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// NewDirectory constructs the directory service.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.IDProvider
	if newID == nil {
		newID = uuid.NewString
	}
	return &Directory{
		db:    cfg.Database,
		now:   clock,
		newID: newID,
	}, nil
}

// FindBySocialIdentity resolves a user by the (provider, social id) natural key.
func (d *Directory) FindBySocialIdentity(ctx context.Context, prov provider.Provider, socialID string) (*User, error) {
	var user User
	err := d.db.WithContext(ctx).
		Where("social_provider = ? AND social_id = ?", string(prov), socialID).
		First(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateFromProfile creates a new account from a normalized provider profile.
func (d *Directory) CreateFromProfile(ctx context.Context, profile provider.Profile) (*User, error) {
	if profile.SocialID == "" {
		return nil, fmt.Errorf("users: social id required")
	}
	now := d.now()
	user := User{
		ID:             d.newID(),
		SocialID:       profile.SocialID,
		SocialProvider: string(profile.Provider),
		Email:          profile.Email,
		Username:       profile.Username,
		FullName:       profile.FullName,
		Nickname:       profile.Nickname,
		ProfileImage:   profile.ProfileImage,
		Gender:         string(profile.Gender),
		BirthDate:      profile.BirthDate,
		PhoneNumber:    profile.PhoneNumber,
		AgeRange:       profile.AgeRange,
		Locale:         profile.Locale,
		Role:           RoleUser,
		IsActive:       true,
		LastLogin:      &now,
	}
	if err := d.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchLastLogin records a successful returning login.
func (d *Directory) TouchLastLogin(ctx context.Context, userID string) error {
	return d.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("last_login", d.now()).
		Error
}

// Get returns the user with the given surrogate id.
func (d *Directory) Get(ctx context.Context, userID string) (*User, error) {
	var user User
	err := d.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns a page of users ordered by creation time.
func (d *Directory) List(ctx context.Context, offset, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 10
	}
	var page []User
	err := d.db.WithContext(ctx).
		Order("created_at").
		Offset(offset).
		Limit(limit).
		Find(&page).
		Error
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Update describes the mutable profile fields. Nil pointers are left unchanged.
type Update struct {
	Username     *string
	FullName     *string
	Nickname     *string
	ProfileImage *string
	PhoneNumber  *string
	Address      *string
}

// Apply updates the given user's mutable profile fields and returns the
// refreshed record.
func (d *Directory) Apply(ctx context.Context, userID string, update Update) (*User, error) {
	changes := map[string]interface{}{}
	if update.Username != nil {
		changes["username"] = *update.Username
	}
	if update.FullName != nil {
		changes["full_name"] = *update.FullName
	}
	if update.Nickname != nil {
		changes["nickname"] = *update.Nickname
	}
	if update.ProfileImage != nil {
		changes["profile_image"] = *update.ProfileImage
	}
	if update.PhoneNumber != nil {
		changes["phone_number"] = *update.PhoneNumber
	}
	if update.Address != nil {
		changes["address"] = *update.Address
	}
	if len(changes) > 0 {
		result := d.db.WithContext(ctx).
			Model(&User{}).
			Where("id = ?", userID).
			Updates(changes)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return d.Get(ctx, userID)
}
