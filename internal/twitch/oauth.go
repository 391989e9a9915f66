package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAuthURL is the production OAuth base.
const DefaultAuthURL = "https://id.twitch.tv/oauth2"

// OAuth talks to the identity endpoints: token validation, refresh, revocation
// and the device authorization grant used for sign-in.
type OAuth struct {
	http         *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	logger       *slog.Logger
	now          func() time.Time
}

// NewOAuth creates an identity client. clientSecret may be empty for public clients.
func NewOAuth(baseURL, clientID, clientSecret string, logger *slog.Logger) *OAuth {
	if baseURL == "" {
		baseURL = DefaultAuthURL
	}
	return &OAuth{
		http:         &http.Client{Timeout: defaultTimeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// ClientID returns the application client id.
func (o *OAuth) ClientID() string { return o.clientID }

// Validate checks an access token. ErrUnauthorized means it is no longer valid.
func (o *OAuth) Validate(ctx context.Context, token string) (*TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/validate", nil)
	if err != nil {
		return nil, wrapError("validate", 0, err)
	}
	req.Header.Set("Authorization", "OAuth "+token)

	body, status, err := o.do(req)
	if err != nil {
		return nil, wrapError("validate", status, err)
	}
	info, err := decode[TokenInfo]("validate", status, body)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Refresh trades a refresh token for a new grant. A rejected refresh token is
// reported as ErrUnauthorized.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	tok, err := o.token(ctx, "refresh", form)
	if err != nil && errorsIsBadRequest(err) {
		return nil, wrapError("refresh", http.StatusBadRequest, ErrUnauthorized)
	}
	return tok, err
}

// Revoke invalidates an access token.
func (o *OAuth) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("client_id", o.clientID)
	form.Set("token", token)

	req, err := o.formRequest(ctx, "/revoke", form)
	if err != nil {
		return wrapError("revoke", 0, err)
	}
	if _, status, err := o.do(req); err != nil {
		return wrapError("revoke", status, err)
	}
	return nil
}

// StartDevice begins a device authorization grant.
func (o *OAuth) StartDevice(ctx context.Context, scopes []string) (*DeviceCode, error) {
	form := url.Values{}
	form.Set("client_id", o.clientID)
	form.Set("scopes", strings.Join(scopes, " "))

	req, err := o.formRequest(ctx, "/device", form)
	if err != nil {
		return nil, wrapError("startDevice", 0, err)
	}
	body, status, err := o.do(req)
	if err != nil {
		return nil, wrapError("startDevice", status, err)
	}
	dc, err := decode[DeviceCode]("startDevice", status, body)
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// PollDevice asks whether the user has approved the device code yet.
// Returns ErrAuthorizationPending, ErrSlowDown or ErrDeviceExpired while not done.
func (o *OAuth) PollDevice(ctx context.Context, deviceCode string, scopes []string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	form.Set("device_code", deviceCode)
	form.Set("scopes", strings.Join(scopes, " "))

	tok, err := o.token(ctx, "pollDevice", form)
	if err == nil {
		return tok, nil
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		return nil, err
	}
	msg := strings.ToLower(apiErr.Err.Error())
	switch {
	case strings.Contains(msg, "authorization_pending"):
		return nil, ErrAuthorizationPending
	case strings.Contains(msg, "slow_down"):
		return nil, ErrSlowDown
	case strings.Contains(msg, "invalid device code"), strings.Contains(msg, "expired"):
		return nil, ErrDeviceExpired
	default:
		return nil, err
	}
}

func (o *OAuth) token(ctx context.Context, op string, form url.Values) (*Token, error) {
	form.Set("client_id", o.clientID)
	if o.clientSecret != "" {
		form.Set("client_secret", o.clientSecret)
	}

	req, err := o.formRequest(ctx, "/token", form)
	if err != nil {
		return nil, wrapError(op, 0, err)
	}
	body, status, err := o.do(req)
	if err != nil {
		return nil, wrapError(op, status, err)
	}
	tok, err := decode[Token](op, status, body)
	if err != nil {
		return nil, err
	}
	tok.ObtainedAt = o.now()
	return &tok, nil
}

func (o *OAuth) formRequest(ctx context.Context, path string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (o *OAuth) do(req *http.Request) ([]byte, int, error) {
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		// Device-flow states ride on 400 bodies; keep the message intact.
		return body, resp.StatusCode, fmt.Errorf("%w: %s", ErrBadRequest, apiMessage(body))
	}
	return body, resp.StatusCode, statusError(resp.StatusCode, body)
}

func errorsIsBadRequest(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}
