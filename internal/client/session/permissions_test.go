package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/teaadmin/internal/models"
)

func TestHasPermission_AdminBypass(t *testing.T) {
	backend := staffBackend()
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		return &models.User{ID: 1, Role: models.RoleAdmin}, nil
	}
	backend.UserPermissionsFunc = func(ctx context.Context, userID int64) ([]string, error) {
		return nil, nil
	}
	m := New(newStore(t, "tok"), backend, nil, nil)
	m.Bootstrap(context.Background())

	for _, name := range []string{"", "order:refund", "never:granted", "rbac:manage"} {
		assert.True(t, m.HasPermission(name), "admin should hold %q", name)
	}
	assert.Empty(t, m.Permissions(), "admin bypass is not a wildcard entry")
}

func TestHasPermission_Membership(t *testing.T) {
	m := New(newStore(t, "tok"), staffBackend(), nil, nil)
	m.Bootstrap(context.Background())

	tests := []struct {
		name string
		want bool
	}{
		{"", true},
		{"order:refund", true},
		{"order:cancel", true},
		{"order:adjust", false},
		{"Order:Refund", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.HasPermission(tt.name), "HasPermission(%q)", tt.name)
	}
}

func TestHasPermission_NoSession(t *testing.T) {
	m := New(newStore(t, ""), staffBackend(), nil, nil)
	m.Bootstrap(context.Background())
	assert.True(t, m.HasPermission(""))
	assert.False(t, m.HasPermission("order:refund"))
}

func TestPermissionFetchFailureIsFailClosed(t *testing.T) {
	backend := staffBackend()
	backend.UserPermissionsFunc = func(ctx context.Context, userID int64) ([]string, error) {
		return nil, errors.New("rbac service unavailable")
	}
	store := newStore(t, "")
	m := New(store, backend, nil, nil)

	require.NoError(t, m.Login(context.Background(), models.LoginRequest{}))

	assert.NotNil(t, m.User(), "a permission failure keeps the user")
	assert.Equal(t, "tok1", store.Token())
	assert.Empty(t, m.Permissions())
	assert.False(t, m.HasPermission("order:refund"))
}

func TestRefreshPermissions_Idempotent(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, "tok"), backend, nil, nil)
	m.Bootstrap(context.Background())

	m.RefreshPermissions(context.Background())
	first := m.Permissions()
	m.RefreshPermissions(context.Background())
	second := m.Permissions()

	assert.Equal(t, first, second)
	assert.Equal(t, int32(3), backend.permCalls.Load())
}

func TestRefreshPermissions_PicksUpChanges(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, "tok"), backend, nil, nil)
	m.Bootstrap(context.Background())

	backend.UserPermissionsFunc = func(ctx context.Context, userID int64) ([]string, error) {
		return []string{"finance:view"}, nil
	}
	m.RefreshPermissions(context.Background())

	assert.Equal(t, []string{"finance:view"}, m.Permissions())
	assert.False(t, m.HasPermission("order:refund"))
}

func TestRefreshPermissions_FailureEmptiesSet(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, "tok"), backend, nil, nil)
	m.Bootstrap(context.Background())
	require.NotEmpty(t, m.Permissions())

	backend.UserPermissionsFunc = func(ctx context.Context, userID int64) ([]string, error) {
		return nil, errors.New("timeout")
	}
	m.RefreshPermissions(context.Background())

	assert.Empty(t, m.Permissions())
}

func TestRefreshPermissions_NoUserClears(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, ""), backend, nil, nil)
	m.Bootstrap(context.Background())

	m.RefreshPermissions(context.Background())

	assert.Empty(t, m.Permissions())
	assert.Zero(t, backend.permCalls.Load())
}

func TestStartPermissionRefresher(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, "tok"), backend, nil, nil)
	m.Bootstrap(context.Background())
	require.Equal(t, int32(1), backend.permCalls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartPermissionRefresher(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return backend.permCalls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}
