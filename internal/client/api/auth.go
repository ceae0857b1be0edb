package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/atinyakov/teaadmin/internal/models"
)

// Backend routes used by the session layer.
const (
	PathLogin           = "/api/v1/auth/login"
	PathDevLogin        = "/api/v1/user/dev-login"
	PathCurrentUser     = "/api/v1/user/info"
	PathUserPermissions = "/api/v1/admin/rbac/user-permissions"
	PathCaptcha         = "/api/v1/auth/captcha"
	PathRefresh         = "/api/v1/user/refresh"
)

// Login performs the captcha-protected password login. It does not touch
// the token store; storing the token is the session's job.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevLogin performs the non-production openid login.
func (c *Client) DevLogin(ctx context.Context, openid string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, PathDevLogin, models.DevLoginRequest{OpenID: openid}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser fetches the profile of the token holder.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, PathCurrentUser, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserPermissions fetches the permission names granted to userID. The
// backend may answer with plain strings or with {"name": ...} rows.
func (c *Client) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	var raw json.RawMessage
	query := map[string]string{"user_id": strconv.FormatInt(userID, 10)}
	if err := c.do(ctx, http.MethodGet, PathUserPermissions, nil, query, &raw); err != nil {
		return nil, err
	}
	return decodePermissions(raw)
}

func decodePermissions(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return compact(names), nil
	}

	var rows []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("invalid permission list: %w", err)
	}
	names = make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return compact(names), nil
}

func compact(names []string) []string {
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Captcha fetches a development captcha challenge.
func (c *Client) Captcha(ctx context.Context) (*models.Captcha, error) {
	var out models.Captcha
	if err := c.do(ctx, http.MethodGet, PathCaptcha, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ErrEmptyToken is returned when the refresh endpoint answers without a token.
var ErrEmptyToken = errors.New("backend returned no token")

// RefreshToken exchanges the current token for a new one. The token store is
// left alone; the session decides whether the new token still applies.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, PathRefresh, nil, nil, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", ErrEmptyToken
	}
	return out.Token, nil
}
