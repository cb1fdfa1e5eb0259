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

const defaultRefreshThreshold = 5 * time.Minute

// ErrUnauthenticated is the single outcome every rejected request maps to,
// regardless of which sub-check tripped.
var ErrUnauthenticated = errors.New("auth: could not validate credentials")

// ErrUnknownSubject marks a verified token whose subject has no matching
// user. It is a consistency fault, not a user error, and still collapses
// into ErrUnauthenticated for callers branching with errors.Is.
var ErrUnknownSubject = fmt.Errorf("%w: unknown subject", ErrUnauthenticated)

// TokenStore persists the currently valid token pair for a user.
type TokenStore interface {
	SavePair(ctx context.Context, userID, accessToken, refreshToken string) error
	Lookup(ctx context.Context, userID string) (accessToken, refreshToken string, err error)
	Invalidate(ctx context.Context, userID string) error
}

// Directory is the external user directory consumed by the auth core.
type Directory interface {
	FindBySocialIdentity(ctx context.Context, prov provider.Provider, socialID string) (*users.User, error)
	CreateFromProfile(ctx context.Context, profile provider.Profile) (*users.User, error)
	TouchLastLogin(ctx context.Context, userID string) error
}

// GateConfig configures the request-authentication gate.
type GateConfig struct {
	Issuer           *TokenIssuer
	Store            TokenStore
	Directory        Directory
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RefreshThreshold time.Duration
	Logger           *zap.Logger
	Clock            func() time.Time
}

// Gate authenticates presented access tokens, preemptively rotating pairs
// that are close to expiry.
type Gate struct {
	issuer     *TokenIssuer
	store      TokenStore
	directory  Directory
	accessTTL  time.Duration
	refreshTTL time.Duration
	threshold  time.Duration
	logger     *zap.Logger
	clock      func() time.Time
}

// NewGate constructs a gate with validated dependencies.
func NewGate(cfg GateConfig) (*Gate, error) {
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
	threshold := cfg.RefreshThreshold
	if threshold <= 0 {
		threshold = defaultRefreshThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{
		issuer:     cfg.Issuer,
		store:      cfg.Store,
		directory:  cfg.Directory,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		threshold:  threshold,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Result is a successful authentication outcome. RotatedPair is non-nil
// when the presented token was preemptively replaced; the caller should
// hand the new pair back to the client.
type Result struct {
	User        *users.User
	Payload     TokenPayload
	RotatedPair *Pair
}

// Authenticate verifies the presented access token, rotates the pair when
// the token is within the preemptive-refresh threshold, and resolves the
// canonical user. Every rejection path returns ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, presented string) (Result, error) {
	payload, err := g.issuer.Verify(presented, KindAccess)
	if err != nil {
		g.logger.Info("token verification failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := g.directory.FindBySocialIdentity(ctx, payload.Provider, payload.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			g.logger.Warn("token subject has no matching user",
				zap.String("provider", string(payload.Provider)))
			return Result{}, ErrUnknownSubject
		}
		g.logger.Error("user directory lookup failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var rotated *Pair
	if payload.ExpiresAt.Sub(g.clock()) < g.threshold {
		if pair, newPayload, ok := g.rotate(ctx, user); ok {
			rotated = &pair
			payload = newPayload
		}
	}

	// Final check against the possibly rotated payload.
	if payload.Kind != KindAccess || !payload.ExpiresAt.After(g.clock()) {
		return Result{}, ErrUnauthenticated
	}

	return Result{User: user, Payload: payload, RotatedPair: rotated}, nil
}

// rotate is best-effort: a store miss, store error, or issuance error skips
// rotation and the request proceeds with the original token.
func (g *Gate) rotate(ctx context.Context, user *users.User) (Pair, TokenPayload, bool) {
	_, storedRefresh, err := g.store.Lookup(ctx, user.ID)
	if err != nil {
		g.logger.Warn("rotation skipped: token store lookup failed", zap.Error(err))
		return Pair{}, TokenPayload{}, false
	}
	if storedRefresh == "" {
		return Pair{}, TokenPayload{}, false
	}

	pair, err := g.issuer.IssuePair(user.SocialID, user.Provider(), g.accessTTL, g.refreshTTL)
	if err != nil {
		g.logger.Warn("rotation skipped: pair issuance failed", zap.Error(err))
		return Pair{}, TokenPayload{}, false
	}
	if err := g.store.SavePair(ctx, user.ID, pair.AccessToken, pair.RefreshToken); err != nil {
		g.logger.Warn("rotation skipped: token store save failed", zap.Error(err))
		return Pair{}, TokenPayload{}, false
	}

	payload, err := g.issuer.Verify(pair.AccessToken, KindAccess)
	if err != nil {
		g.logger.Warn("rotation skipped: new access token failed verification", zap.Error(err))
		return Pair{}, TokenPayload{}, false
	}

	g.logger.Debug("access token preemptively rotated", zap.String("user_id", user.ID))
	return pair, payload, true
}
