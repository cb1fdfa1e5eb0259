package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

var (
	errInvalidAuthorizationCode = errors.New("invalid authorization code")
	errInvalidAccessToken       = errors.New("invalid access token")
	errMalformedProfile         = errors.New("malformed profile response")
)

// ExchangeError wraps any failure during a provider exchange with the
// provider it came from. Callers surface it as a generic authentication
// failure; the cause stays in server-side logs.
type ExchangeError struct {
	Provider Provider
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("provider %s: authentication failed: %v", e.Provider, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

func exchangeFailed(p Provider, err error) error {
	return &ExchangeError{Provider: p, Err: err}
}

// tokenResponse is the subset of the token-endpoint reply every provider shares.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// postToken performs the code→token exchange against a provider token endpoint.
func postToken(ctx context.Context, client *http.Client, endpoint string, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("%w: token endpoint returned %d", errInvalidAuthorizationCode, resp.StatusCode)
	}

	var token tokenResponse
	if err := decodeJSON(resp.Body, &token); err != nil {
		return tokenResponse{}, err
	}
	if token.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("%w: token endpoint returned no access token", errInvalidAuthorizationCode)
	}
	return token, nil
}

// getUserInfo performs the token→profile fetch against a provider userinfo endpoint.
func getUserInfo(ctx context.Context, client *http.Client, endpoint string, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: userinfo endpoint returned %d", errInvalidAccessToken, resp.StatusCode)
	}
	return decodeJSON(resp.Body, out)
}

func decodeJSON(body io.Reader, out any) error {
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedProfile, err)
	}
	return nil
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
