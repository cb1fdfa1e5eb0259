package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleConfig configures the Google adapter. TokenURL and UserInfoURL
// default to the documented Google endpoints and exist for tests.
type GoogleConfig struct {
	Credentials Credentials
	HTTPClient  *http.Client
	TokenURL    string
	UserInfoURL string
}

// GoogleAdapter exchanges Google authorization codes for canonical profiles.
type GoogleAdapter struct {
	creds       Credentials
	client      *http.Client
	tokenURL    string
	userInfoURL string
}

// NewGoogleAdapter constructs a Google adapter with validated configuration.
func NewGoogleAdapter(cfg GoogleConfig) (*GoogleAdapter, error) {
	if err := cfg.Credentials.validate(Google); err != nil {
		return nil, err
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &GoogleAdapter{
		creds:       cfg.Credentials,
		client:      defaultClient(cfg.HTTPClient),
		tokenURL:    tokenURL,
		userInfoURL: userInfoURL,
	}, nil
}

// Provider returns the adapter's provider tag.
func (a *GoogleAdapter) Provider() Provider { return Google }

type googleUserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	Picture   string `json:"picture"`
	Locale    string `json:"locale"`
}

// Exchange swaps the authorization code for a token and fetches the profile.
func (a *GoogleAdapter) Exchange(ctx context.Context, code string, _ string) (Profile, error) {
	token, err := postToken(ctx, a.client, a.tokenURL, url.Values{
		"code":          {code},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"redirect_uri":  {a.creds.RedirectURI},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return Profile{}, exchangeFailed(Google, err)
	}

	var info googleUserInfo
	if err := getUserInfo(ctx, a.client, a.userInfoURL, token.AccessToken, &info); err != nil {
		return Profile{}, exchangeFailed(Google, err)
	}
	if info.ID == "" {
		return Profile{}, exchangeFailed(Google, fmt.Errorf("%w: missing user id", errMalformedProfile))
	}

	return Profile{
		SocialID:     info.ID,
		Provider:     Google,
		Email:        info.Email,
		Username:     info.Name,
		Nickname:     info.GivenName,
		FullName:     info.Name,
		ProfileImage: info.Picture,
		Gender:       GenderUnspecified,
		Locale:       info.Locale,
	}, nil
}
