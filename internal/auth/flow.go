package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modular-rag/backend/internal/provider"
	"github.com/modular-rag/backend/internal/users"
	"go.uber.org/zap"
)

// ErrStoreUnavailable indicates the token store could not be reached while
// it was required. During login this is fatal to the request: no pair is
// handed out without persistence.
var ErrStoreUnavailable = errors.New("auth: token store unavailable")

// Adapters carries one adapter per supported provider. The closed struct
// (rather than a map) keeps dispatch exhaustive at compile time.
type Adapters struct {
	Google provider.Adapter
	Kakao  provider.Adapter
	Naver  provider.Adapter
}

func (a Adapters) validate() error {
	if a.Google == nil || a.Kakao == nil || a.Naver == nil {
		return errors.New("auth: all provider adapters required")
	}
	return nil
}

func (a Adapters) forProvider(prov provider.Provider) (provider.Adapter, error) {
	switch prov {
	case provider.Google:
		return a.Google, nil
	case provider.Kakao:
		return a.Kakao, nil
	case provider.Naver:
		return a.Naver, nil
	default:
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, prov)
	}
}

// FlowConfig configures the login/refresh/logout orchestration.
type FlowConfig struct {
	Adapters   Adapters
	Issuer     *TokenIssuer
	Store      TokenStore
	Directory  Directory
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     *zap.Logger
}

// Flow orchestrates the cross-component login and refresh sequences.
type Flow struct {
	adapters   Adapters
	issuer     *TokenIssuer
	store      TokenStore
	directory  Directory
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewFlow constructs the orchestrator with validated dependencies.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if err := cfg.Adapters.validate(); err != nil {
		return nil, err
	}
	if cfg.Issuer == nil {
		return nil, errors.New("auth: token issuer required")
	}
	if cfg.Store == nil {
		return nil, errors.New("auth: token store required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("auth: user directory required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token ttls must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		adapters:   cfg.Adapters,
		issuer:     cfg.Issuer,
		store:      cfg.Store,
		directory:  cfg.Directory,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		logger:     logger,
	}, nil
}

// Login exchanges the authorization code, finds or creates the user by
// social identity, and issues and persists a fresh token pair. The steps
// are not atomic; a failure at any step aborts the login.
func (f *Flow) Login(ctx context.Context, prov provider.Provider, code, state string) (*users.User, Pair, error) {
	adapter, err := f.adapters.forProvider(prov)
	if err != nil {
		return nil, Pair{}, err
	}

	profile, err := adapter.Exchange(ctx, code, state)
	if err != nil {
		f.logger.Warn("provider exchange failed",
			zap.String("provider", string(prov)), zap.Error(err))
		return nil, Pair{}, err
	}

	user, err := f.directory.FindBySocialIdentity(ctx, prov, profile.SocialID)
	switch {
	case err == nil:
		if err := f.directory.TouchLastLogin(ctx, user.ID); err != nil {
			f.logger.Warn("failed to update last login", zap.Error(err))
		}
	case errors.Is(err, users.ErrNotFound):
		user, err = f.directory.CreateFromProfile(ctx, profile)
		if err != nil {
			f.logger.Error("failed to create user", zap.Error(err))
			return nil, Pair{}, err
		}
		f.logger.Info("created new user",
			zap.String("user_id", user.ID), zap.String("provider", string(prov)))
	default:
		return nil, Pair{}, err
	}

	pair, err := f.issueAndSave(ctx, user)
	if err != nil {
		return nil, Pair{}, err
	}
	return user, pair, nil
}

// Refresh validates a presented refresh token against the stored one and,
// on match, issues and persists a replacement pair. An absent stored token
// and a mismatched one are treated identically.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*users.User, Pair, error) {
	payload, err := f.issuer.Verify(refreshToken, KindRefresh)
	if err != nil {
		f.logger.Info("refresh token verification failed", zap.Error(err))
		return nil, Pair{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := f.directory.FindBySocialIdentity(ctx, payload.Provider, payload.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, Pair{}, ErrUnknownSubject
		}
		return nil, Pair{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	_, stored, err := f.store.Lookup(ctx, user.ID)
	if err != nil {
		return nil, Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if stored == "" || stored != refreshToken {
		f.logger.Info("presented refresh token does not match stored token",
			zap.String("user_id", user.ID))
		return nil, Pair{}, ErrUnauthenticated
	}

	pair, err := f.issueAndSave(ctx, user)
	if err != nil {
		return nil, Pair{}, err
	}
	return user, pair, nil
}

// Logout eagerly removes the user's stored pair. Absent entries are not an
// error.
func (f *Flow) Logout(ctx context.Context, userID string) error {
	if err := f.store.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (f *Flow) issueAndSave(ctx context.Context, user *users.User) (Pair, error) {
	pair, err := f.issuer.IssuePair(user.SocialID, user.Provider(), f.accessTTL, f.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	if err := f.store.SavePair(ctx, user.ID, pair.AccessToken, pair.RefreshToken); err != nil {
		f.logger.Error("failed to persist token pair", zap.Error(err))
		return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return pair, nil
}
