// Package models defines the data structures shared by the admin session
// client and the mock admin backend.
package models

import "encoding/json"

// Role values assigned to users by the backend.
const (
	// RoleAdmin is the administrative role; it bypasses permission checks.
	RoleAdmin = "admin"
	// RoleStore marks a store manager locked to a single store.
	RoleStore = "store"
	// RoleUser is the default role of a plain account.
	RoleUser = "user"
)

// User is the authenticated identity returned by the current-user endpoint.
type User struct {
	// ID is the numeric user identifier; zero means "no valid identifier".
	ID int64 `json:"id"`
	// Username is the password-login name.
	Username string `json:"username,omitempty"`
	// Nickname is the display name.
	Nickname string `json:"nickname,omitempty"`
	// Role is the role tag ("admin", "store", "user", ...).
	Role string `json:"role,omitempty"`
	// StoreID is the store affiliation of a store manager.
	StoreID *int64 `json:"store_id,omitempty"`
	// OpenID is the identifier used by dev login.
	OpenID string `json:"open_id,omitempty"`
	// PasswordHash is the bcrypt hash; never serialized.
	PasswordHash []byte `json:"-"`
}

// HasID reports whether u carries a usable identifier.
func (u *User) HasID() bool {
	return u != nil && u.ID > 0
}

// IsAdmin reports whether u holds the administrative role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns the nickname, falling back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// LoginRequest is the captcha-protected password login payload.
type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// DevLoginRequest is the non-production login shortcut payload.
type DevLoginRequest struct {
	OpenID string `json:"openid"`
}

// LoginResponse is returned by both login endpoints.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Captcha is a development captcha challenge.
type Captcha struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Envelope is the response wrapper used by every backend endpoint.
// Code 0 means success.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Envelope codes.
const (
	CodeSuccess      = 0
	CodeError        = 1
	CodeInvalidParam = 1001
	CodeUnauthorized = 1002
	CodeForbidden    = 1003
)
