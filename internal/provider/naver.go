package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	naverTokenURL    = "https://nid.naver.com/oauth2.0/token"
	naverUserInfoURL = "https://openapi.naver.com/v1/nid/me"

	naverResultOK = "00"
)

var errMissingState = errors.New("naver requires the state parameter")

// NaverConfig configures the Naver adapter. The endpoint overrides exist
// for tests.
type NaverConfig struct {
	Credentials Credentials
	HTTPClient  *http.Client
	TokenURL    string
	UserInfoURL string
}

// NaverAdapter exchanges Naver authorization codes for canonical profiles.
type NaverAdapter struct {
	creds       Credentials
	client      *http.Client
	tokenURL    string
	userInfoURL string
}

// NewNaverAdapter constructs a Naver adapter with validated configuration.
func NewNaverAdapter(cfg NaverConfig) (*NaverAdapter, error) {
	if err := cfg.Credentials.validate(Naver); err != nil {
		return nil, err
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = naverTokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = naverUserInfoURL
	}
	return &NaverAdapter{
		creds:       cfg.Credentials,
		client:      defaultClient(cfg.HTTPClient),
		tokenURL:    tokenURL,
		userInfoURL: userInfoURL,
	}, nil
}

// Provider returns the adapter's provider tag.
func (a *NaverAdapter) Provider() Provider { return Naver }

type naverUserInfo struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
		Gender       string `json:"gender"`
		Age          string `json:"age"`
		BirthYear    string `json:"birthyear"`
		Birthday     string `json:"birthday"`
		Mobile       string `json:"mobile"`
	} `json:"response"`
}

// Exchange swaps the authorization code for a token and fetches the profile.
// Naver requires the state value issued alongside the code to be echoed back.
func (a *NaverAdapter) Exchange(ctx context.Context, code string, state string) (Profile, error) {
	if state == "" {
		return Profile{}, exchangeFailed(Naver, errMissingState)
	}

	token, err := postToken(ctx, a.client, a.tokenURL, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"code":          {code},
		"state":         {state},
	})
	if err != nil {
		return Profile{}, exchangeFailed(Naver, err)
	}

	var info naverUserInfo
	if err := getUserInfo(ctx, a.client, a.userInfoURL, token.AccessToken, &info); err != nil {
		return Profile{}, exchangeFailed(Naver, err)
	}
	if info.ResultCode != naverResultOK {
		return Profile{}, exchangeFailed(Naver, fmt.Errorf("%w: resultcode %q (%s)", errMalformedProfile, info.ResultCode, info.Message))
	}
	if info.Response.ID == "" {
		return Profile{}, exchangeFailed(Naver, fmt.Errorf("%w: missing user id", errMalformedProfile))
	}

	r := info.Response
	gender := GenderUnspecified
	switch r.Gender {
	case "M":
		gender = GenderMale
	case "F":
		gender = GenderFemale
	}

	return Profile{
		SocialID:     r.ID,
		Provider:     Naver,
		Email:        r.Email,
		Username:     r.Name,
		Nickname:     r.Nickname,
		FullName:     r.Name,
		ProfileImage: r.ProfileImage,
		Gender:       gender,
		AgeRange:     r.Age,
		BirthDate:    parseNaverBirthDate(r.BirthYear, r.Birthday),
		PhoneNumber:  r.Mobile,
	}, nil
}

// parseNaverBirthDate combines Naver's separate birthyear and MM-DD birthday
// fields. Either field missing or malformed yields no birth date.
func parseNaverBirthDate(birthYear, birthday string) *time.Time {
	if birthYear == "" || birthday == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", birthYear+"-"+birthday)
	if err != nil {
		return nil
	}
	return &parsed
}
