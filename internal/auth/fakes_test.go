package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/modular-rag/backend/internal/provider"
	"github.com/modular-rag/backend/internal/users"
)

// fakeStore is an in-memory TokenStore double.
type fakeStore struct {
	access    map[string]string
	refresh   map[string]string
	saveErr   error
	lookupErr error
	saves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		access:  map[string]string{},
		refresh: map[string]string{},
	}
}

func (s *fakeStore) SavePair(_ context.Context, userID, accessToken, refreshToken string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.access[userID] = accessToken
	s.refresh[userID] = refreshToken
	return nil
}

func (s *fakeStore) Lookup(_ context.Context, userID string) (string, string, error) {
	if s.lookupErr != nil {
		return "", "", s.lookupErr
	}
	return s.access[userID], s.refresh[userID], nil
}

func (s *fakeStore) Invalidate(_ context.Context, userID string) error {
	delete(s.access, userID)
	delete(s.refresh, userID)
	return nil
}

// fakeDirectory is an in-memory Directory double keyed by provider:socialID.
type fakeDirectory struct {
	byIdentity map[string]*users.User
	nextID     int
	created    []provider.Profile
	touched    []string
	findErr    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byIdentity: map[string]*users.User{}}
}

func identityKey(prov provider.Provider, socialID string) string {
	return string(prov) + ":" + socialID
}

func (d *fakeDirectory) FindBySocialIdentity(_ context.Context, prov provider.Provider, socialID string) (*users.User, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	user, ok := d.byIdentity[identityKey(prov, socialID)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) CreateFromProfile(_ context.Context, profile provider.Profile) (*users.User, error) {
	d.nextID++
	user := &users.User{
		ID:             fmt.Sprintf("user-%d", d.nextID),
		SocialID:       profile.SocialID,
		SocialProvider: string(profile.Provider),
		Nickname:       profile.Nickname,
		IsActive:       true,
	}
	d.byIdentity[identityKey(profile.Provider, profile.SocialID)] = user
	d.created = append(d.created, profile)
	return user, nil
}

func (d *fakeDirectory) TouchLastLogin(_ context.Context, userID string) error {
	d.touched = append(d.touched, userID)
	return nil
}

func (d *fakeDirectory) seed(user *users.User) {
	d.byIdentity[identityKey(provider.Provider(user.SocialProvider), user.SocialID)] = user
}

// fakeAdapter returns a fixed profile or error and records its inputs.
type fakeAdapter struct {
	prov     provider.Provider
	profile  provider.Profile
	err      error
	gotCode  string
	gotState string
}

func (a *fakeAdapter) Provider() provider.Provider { return a.prov }

func (a *fakeAdapter) Exchange(_ context.Context, code, state string) (provider.Profile, error) {
	a.gotCode = code
	a.gotState = state
	if a.err != nil {
		return provider.Profile{}, a.err
	}
	return a.profile, nil
}

var errStoreDown = errors.New("connection refused")
