// Package service provides the authentication and permission logic of the
// mock admin backend, delegating persistence to repositories.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/teaadmin/internal/models"
	"github.com/atinyakov/teaadmin/internal/repository"
)

var (
	// ErrInvalidCredentials covers an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidCaptcha covers a missing, expired, reused or wrong captcha.
	ErrInvalidCaptcha = errors.New("invalid captcha")
	// ErrDevLoginDisabled is returned outside the local and dev environments.
	ErrDevLoginDisabled = errors.New("dev login is disabled")
	// ErrInvalidParam is returned for a request missing required fields.
	ErrInvalidParam = errors.New("invalid parameter")
)

// UserRepository defines the account operations required by the service.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByOpenID(ctx context.Context, openid string) (*models.User, error)
	CreateByOpenID(ctx context.Context, openid, nickname string) (*models.User, error)
}

// CaptchaRepository stores login captchas.
type CaptchaRepository interface {
	Save(ctx context.Context, id, code string, expiresAt time.Time) error
	Consume(ctx context.Context, id string, now time.Time) (string, error)
}

// PermissionRepository resolves RBAC grants.
type PermissionRepository interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// Options tune the AuthService.
type Options struct {
	CaptchaTTL time.Duration
	DevLogin   bool
}

// AuthService implements login, token refresh and permission lookup.
type AuthService struct {
	users       UserRepository
	captchas    CaptchaRepository
	permissions PermissionRepository
	tokens      *TokenIssuer
	opts        Options
	now         func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(
	users UserRepository,
	captchas CaptchaRepository,
	permissions PermissionRepository,
	tokens *TokenIssuer,
	opts Options,
) *AuthService {
	if opts.CaptchaTTL <= 0 {
		opts.CaptchaTTL = 5 * time.Minute
	}
	return &AuthService{
		users:       users,
		captchas:    captchas,
		permissions: permissions,
		tokens:      tokens,
		opts:        opts,
		now:         time.Now,
	}
}

// HashPassword returns the bcrypt hash stored for password.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Captcha issues a four digit code under a fresh id.
func (s *AuthService) Captcha(ctx context.Context) (*models.Captcha, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return nil, fmt.Errorf("generate captcha: %w", err)
	}
	c := &models.Captcha{ID: uuid.NewString(), Code: fmt.Sprintf("%04d", n.Int64())}
	if err := s.captchas.Save(ctx, c.ID, c.Code, s.now().Add(s.opts.CaptchaTTL)); err != nil {
		return nil, err
	}
	return c, nil
}

// Login checks the captcha and the password and issues a token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidParam)
	}
	if err := s.checkCaptcha(ctx, req.CaptchaID, req.CaptchaCode); err != nil {
		return nil, err
	}

	u, err := s.users.FindByUsername(ctx, req.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if len(u.PasswordHash) == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *AuthService) checkCaptcha(ctx context.Context, id, code string) error {
	if id == "" || code == "" {
		return ErrInvalidCaptcha
	}
	want, err := s.captchas.Consume(ctx, id, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCaptcha
	}
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(code), want) {
		return ErrInvalidCaptcha
	}
	return nil
}

// DevLogin signs in by openid, creating a plain user for an unknown one.
func (s *AuthService) DevLogin(ctx context.Context, openid string) (*models.LoginResponse, error) {
	if !s.opts.DevLogin {
		return nil, ErrDevLoginDisabled
	}
	if openid == "" {
		return nil, fmt.Errorf("%w: openid is required", ErrInvalidParam)
	}
	u, err := s.users.FindByOpenID(ctx, openid)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.users.CreateByOpenID(ctx, openid, openid)
	}
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// UserInfo returns the account behind userID.
func (s *AuthService) UserInfo(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

// Refresh issues a new token for an existing account.
func (s *AuthService) Refresh(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(u.ID, u.Role)
}

// Permissions returns the permission names granted to userID.
func (s *AuthService) Permissions(ctx context.Context, userID int64) ([]string, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id required", ErrInvalidParam)
	}
	return s.permissions.UserPermissions(ctx, userID)
}

// Authenticate resolves a bearer token to a user id.
func (s *AuthService) Authenticate(token string) (int64, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (s *AuthService) issue(u *models.User) (*models.LoginResponse, error) {
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, User: u}, nil
}
