package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/modular-rag/backend/internal/provider"
	"gorm.io/gorm"
)

func newTestDirectory(t *testing.T, clock func() time.Time) *Directory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}

	sequence := 0
	directory, err := NewDirectory(DirectoryConfig{
		Database: db,
		Clock:    clock,
		IDProvider: func() string {
			sequence++
			return fmt.Sprintf("user-%04d", sequence)
		},
	})
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	return directory
}

func kakaoProfile(socialID string) provider.Profile {
	return provider.Profile{
		SocialID: socialID,
		Provider: provider.Kakao,
		Nickname: "Alice",
		Gender:   provider.GenderUnspecified,
	}
}

func TestCreateFromProfileAndFindBySocialIdentity(t *testing.T) {
	directory := newTestDirectory(t, func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })

	created, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" || created.ID == created.SocialID {
		t.Fatalf("expected a surrogate id distinct from the social id, got %q", created.ID)
	}
	if !created.IsActive || created.Role != RoleUser {
		t.Fatalf("unexpected defaults: %+v", created)
	}
	if created.LastLogin == nil {
		t.Fatalf("creation must set last login")
	}

	found, err := directory.FindBySocialIdentity(context.Background(), provider.Kakao, "12345")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("find returned wrong user: %q", found.ID)
	}
}

func TestFindBySocialIdentityScopesByProvider(t *testing.T) {
	directory := newTestDirectory(t, nil)

	if _, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Same subject id under another provider is a different identity.
	_, err := directory.FindBySocialIdentity(context.Background(), provider.Google, "12345")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the wrong provider, got %v", err)
	}
}

func TestDuplicateSocialIdentityRejected(t *testing.T) {
	directory := newTestDirectory(t, nil)

	if _, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345")); err == nil {
		t.Fatalf("expected unique constraint violation for duplicate identity")
	}
}

func TestTouchLastLogin(t *testing.T) {
	current := time.Unix(1_700_000_000, 0).UTC()
	directory := newTestDirectory(t, func() time.Time { return current })

	created, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	current = current.Add(time.Hour)
	if err := directory.TouchLastLogin(context.Background(), created.ID); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	refreshed, err := directory.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if refreshed.LastLogin == nil || !refreshed.LastLogin.Equal(current) {
		t.Fatalf("last login not updated: %v", refreshed.LastLogin)
	}
}

func TestApplyUpdatesOnlyProvidedFields(t *testing.T) {
	directory := newTestDirectory(t, nil)

	created, err := directory.CreateFromProfile(context.Background(), kakaoProfile("12345"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	nickname := "Allie"
	phone := "010-1234-5678"
	updated, err := directory.Apply(context.Background(), created.ID, Update{
		Nickname:    &nickname,
		PhoneNumber: &phone,
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if updated.Nickname != "Allie" || updated.PhoneNumber != "010-1234-5678" {
		t.Fatalf("updates not applied: %+v", updated)
	}
	if updated.SocialID != created.SocialID {
		t.Fatalf("identity fields must be immutable")
	}
}

func TestApplyUnknownUserReturnsNotFound(t *testing.T) {
	directory := newTestDirectory(t, nil)

	nickname := "ghost"
	_, err := directory.Apply(context.Background(), "missing", Update{Nickname: &nickname})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	directory := newTestDirectory(t, nil)

	for index := 0; index < 5; index++ {
		profile := kakaoProfile(fmt.Sprintf("subject-%d", index))
		if _, err := directory.CreateFromProfile(context.Background(), profile); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	page, err := directory.List(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(page))
	}
}
