package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/modular-rag/backend/internal/provider"
)

// TokenKind distinguishes access tokens from refresh tokens. A token's kind
// is fixed at issuance and can never be reinterpreted.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

var (
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenSignature = errors.New("auth: token signature invalid")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenKind      = errors.New("auth: token kind mismatch")

	errMissingSigningKey = errors.New("signing key must be provided")
	errMissingSubject    = errors.New("subject must be provided")
	errBadAlgorithm      = errors.New("signing algorithm must be an HMAC variant")
	errNonPositiveTTL    = errors.New("token ttl must be positive")
)

// TokenPayload is the verified content of a signed token.
type TokenPayload struct {
	Subject   string
	Provider  provider.Provider
	Kind      TokenKind
	ExpiresAt time.Time
}

// Pair bundles a freshly issued access and refresh token.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type tokenClaims struct {
	Provider string `json:"provider"`
	Kind     string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the issuer. Algorithm defaults to HS256;
// only HMAC variants are accepted since a single shared key signs and
// verifies. Clock defaults to time.Now.
type TokenIssuerConfig struct {
	SigningKey []byte
	Algorithm  string
	Clock      func() time.Time
}

// TokenIssuer creates and verifies signed access/refresh tokens. It holds
// no mutable state and is safe for concurrent use.
type TokenIssuer struct {
	signingKey []byte
	method     jwt.SigningMethod
	clock      func() time.Time
}

// NewTokenIssuer constructs an issuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errMissingSigningKey
	}
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: %q", errBadAlgorithm, algorithm)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingKey: append([]byte(nil), cfg.SigningKey...),
		method:     method,
		clock:      clock,
	}, nil
}

// Issue produces a signed token embedding subject, provider, kind and an
// absolute expiry of now + ttl.
func (i *TokenIssuer) Issue(subject string, prov provider.Provider, kind TokenKind, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errMissingSubject
	}
	if ttl <= 0 {
		return "", errNonPositiveTTL
	}

	now := i.clock().UTC()
	claims := tokenClaims{
		Provider: string(prov),
		Kind:     string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(i.method, claims).SignedString(i.signingKey)
}

// IssuePair issues a fresh access+refresh pair for the subject.
func (i *TokenIssuer) IssuePair(subject string, prov provider.Provider, accessTTL, refreshTTL time.Duration) (Pair, error) {
	access, err := i.Issue(subject, prov, KindAccess, accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.Issue(subject, prov, KindRefresh, refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify parses the token, checks its signature, expiry and kind, and
// returns the embedded payload. The distinct failure conditions are
// ErrTokenMalformed, ErrTokenSignature, ErrTokenExpired and ErrTokenKind.
func (i *TokenIssuer) Verify(tokenString string, want TokenKind) (TokenPayload, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != i.method.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrTokenSignature, t.Method.Alg())
			}
			return i.signingKey, nil
		},
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{i.method.Alg()}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return TokenPayload{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return TokenPayload{}, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		default:
			return TokenPayload{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenMalformed
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return TokenPayload{}, ErrTokenMalformed
	}
	prov, err := provider.Parse(claims.Provider)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if TokenKind(claims.Kind) != want {
		return TokenPayload{}, fmt.Errorf("%w: got %q, want %q", ErrTokenKind, claims.Kind, want)
	}

	return TokenPayload{
		Subject:   claims.Subject,
		Provider:  prov,
		Kind:      TokenKind(claims.Kind),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
