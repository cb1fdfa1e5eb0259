package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies one of the supported external identity services.
type Provider string

const (
	Google Provider = "google"
	Kakao  Provider = "kakao"
	Naver  Provider = "naver"
)

// ErrUnknownProvider indicates a provider tag outside the supported set.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// Parse maps a raw tag (e.g. a path parameter) onto the closed provider set.
func Parse(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case Google:
		return Google, nil
	case Kakao:
		return Kakao, nil
	case Naver:
		return Naver, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// Gender is the canonical gender domain profiles are normalized into.
// Any provider value outside the recognized vocabulary maps to GenderUnspecified.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUnspecified Gender = "unspecified"
)

// Profile is the provider-agnostic result of a successful code exchange.
// It is created fresh per login attempt and never persisted directly.
type Profile struct {
	SocialID     string
	Provider     Provider
	Email        string
	Username     string
	Nickname     string
	FullName     string
	ProfileImage string
	Gender       Gender
	BirthDate    *time.Time
	AgeRange     string
	PhoneNumber  string
	Locale       string
}

// Adapter exchanges an authorization code for a normalized profile.
// Implementations perform two outbound HTTP calls (token endpoint, then
// userinfo endpoint) and mutate no local state.
type Adapter interface {
	Provider() Provider

	// Exchange swaps the single-use authorization code for provider
	// credentials and fetches the profile. The state value is required by
	// Naver and ignored by the other providers.
	Exchange(ctx context.Context, code string, state string) (Profile, error)
}

// Credentials holds the OAuth client registration for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (c Credentials) validate(name Provider) error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("provider %s: client id and secret are required", name)
	}
	return nil
}
