package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	kakaoTokenURL    = "https://kauth.kakao.com/oauth/token"
	kakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"
)

// KakaoConfig configures the Kakao adapter. The endpoint overrides exist
// for tests; Clock feeds the birthday-year heuristic.
type KakaoConfig struct {
	Credentials Credentials
	HTTPClient  *http.Client
	TokenURL    string
	UserInfoURL string
	Clock       func() time.Time
}

// KakaoAdapter exchanges Kakao authorization codes for canonical profiles.
type KakaoAdapter struct {
	creds       Credentials
	client      *http.Client
	tokenURL    string
	userInfoURL string
	clock       func() time.Time
}

// NewKakaoAdapter constructs a Kakao adapter with validated configuration.
func NewKakaoAdapter(cfg KakaoConfig) (*KakaoAdapter, error) {
	if err := cfg.Credentials.validate(Kakao); err != nil {
		return nil, err
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = kakaoTokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = kakaoUserInfoURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &KakaoAdapter{
		creds:       cfg.Credentials,
		client:      defaultClient(cfg.HTTPClient),
		tokenURL:    tokenURL,
		userInfoURL: userInfoURL,
		clock:       clock,
	}, nil
}

// Provider returns the adapter's provider tag.
func (a *KakaoAdapter) Provider() Provider { return Kakao }

type kakaoUserInfo struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email    string `json:"email"`
		Gender   string `json:"gender"`
		AgeRange string `json:"age_range"`
		Birthday string `json:"birthday"`
		Profile  struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// Exchange swaps the authorization code for a token and fetches the profile.
func (a *KakaoAdapter) Exchange(ctx context.Context, code string, _ string) (Profile, error) {
	token, err := postToken(ctx, a.client, a.tokenURL, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"redirect_uri":  {a.creds.RedirectURI},
		"code":          {code},
	})
	if err != nil {
		return Profile{}, exchangeFailed(Kakao, err)
	}

	var info kakaoUserInfo
	if err := getUserInfo(ctx, a.client, a.userInfoURL, token.AccessToken, &info); err != nil {
		return Profile{}, exchangeFailed(Kakao, err)
	}
	if info.ID == 0 {
		return Profile{}, exchangeFailed(Kakao, fmt.Errorf("%w: missing user id", errMalformedProfile))
	}

	account := info.KakaoAccount
	return Profile{
		SocialID:     strconv.FormatInt(info.ID, 10),
		Provider:     Kakao,
		Email:        account.Email,
		Username:     account.Profile.Nickname,
		Nickname:     account.Profile.Nickname,
		FullName:     account.Profile.Nickname,
		ProfileImage: account.Profile.ProfileImageURL,
		Gender:       normalizeGender(account.Gender),
		AgeRange:     account.AgeRange,
		BirthDate:    a.parseBirthday(account.Birthday),
	}, nil
}

// parseBirthday combines Kakao's day-month-only birthday (MMDD) with the
// current year. The resulting date is approximate and callers must treat
// it as such.
func (a *KakaoAdapter) parseBirthday(birthday string) *time.Time {
	if birthday == "" {
		return nil
	}
	year := a.clock().Year()
	parsed, err := time.Parse("20060102", strconv.Itoa(year)+birthday)
	if err != nil {
		return nil
	}
	return &parsed
}

func normalizeGender(raw string) Gender {
	switch raw {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return GenderUnspecified
	}
}
