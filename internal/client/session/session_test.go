package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/teaadmin/internal/client/api"
	"github.com/atinyakov/teaadmin/internal/client/eventbus"
	"github.com/atinyakov/teaadmin/internal/client/tokenstore"
	"github.com/atinyakov/teaadmin/internal/models"
)

type mockBackend struct {
	LoginFunc           func(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	DevLoginFunc        func(ctx context.Context, openid string) (*models.LoginResponse, error)
	CurrentUserFunc     func(ctx context.Context) (*models.User, error)
	UserPermissionsFunc func(ctx context.Context, userID int64) ([]string, error)
	RefreshTokenFunc    func(ctx context.Context) (string, error)

	userCalls atomic.Int32
	permCalls atomic.Int32
}

func (m *mockBackend) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return m.LoginFunc(ctx, req)
}

func (m *mockBackend) DevLogin(ctx context.Context, openid string) (*models.LoginResponse, error) {
	return m.DevLoginFunc(ctx, openid)
}

func (m *mockBackend) CurrentUser(ctx context.Context) (*models.User, error) {
	m.userCalls.Add(1)
	return m.CurrentUserFunc(ctx)
}

func (m *mockBackend) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	m.permCalls.Add(1)
	return m.UserPermissionsFunc(ctx, userID)
}

func (m *mockBackend) RefreshToken(ctx context.Context) (string, error) {
	return m.RefreshTokenFunc(ctx)
}

func newStore(t *testing.T, token string) *tokenstore.Store {
	t.Helper()
	s := tokenstore.New(filepath.Join(t.TempDir(), "token.json"))
	if token != "" {
		require.NoError(t, s.SetToken(token))
	}
	return s
}

func staffBackend() *mockBackend {
	return &mockBackend{
		LoginFunc: func(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
			return &models.LoginResponse{Token: "tok1"}, nil
		},
		DevLoginFunc: func(ctx context.Context, openid string) (*models.LoginResponse, error) {
			return &models.LoginResponse{Token: "dev-" + openid}, nil
		},
		CurrentUserFunc: func(ctx context.Context) (*models.User, error) {
			return &models.User{ID: 5, Nickname: "Clerk", Role: models.RoleUser}, nil
		},
		UserPermissionsFunc: func(ctx context.Context, userID int64) ([]string, error) {
			return []string{"order:refund", "order:cancel"}, nil
		},
		RefreshTokenFunc: func(ctx context.Context) (string, error) {
			return "renewed", nil
		},
	}
}

func TestNew_StartsResolving(t *testing.T) {
	m := New(newStore(t, ""), staffBackend(), nil, nil)
	assert.Equal(t, LoadResolving, m.Loading())
}

func TestBootstrap_NoTokenSkipsNetwork(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, ""), backend, nil, nil)

	m.Bootstrap(context.Background())

	assert.Equal(t, LoadResolved, m.Loading())
	assert.Nil(t, m.User())
	assert.Empty(t, m.Permissions())
	assert.Zero(t, backend.userCalls.Load())
}

func TestBootstrap_PersistedToken(t *testing.T) {
	backend := staffBackend()
	m := New(newStore(t, "saved"), backend, nil, nil)

	m.Bootstrap(context.Background())

	require.Equal(t, LoadResolved, m.Loading())
	require.NotNil(t, m.User())
	assert.Equal(t, int64(5), m.User().ID)
	assert.Equal(t, []string{"order:cancel", "order:refund"}, m.Permissions())
	assert.Equal(t, "saved", m.Token())
}

func TestBootstrap_FetchFailureClearsSession(t *testing.T) {
	backend := staffBackend()
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		return nil, errors.New("token expired")
	}
	store := newStore(t, "expired")
	m := New(store, backend, nil, nil)

	m.Bootstrap(context.Background())

	assert.Equal(t, LoadResolved, m.Loading())
	assert.Empty(t, store.Token())
	assert.Nil(t, m.User())
	assert.Empty(t, m.Permissions())
	assert.Zero(t, backend.permCalls.Load())
}

func TestBootstrap_UserWithoutIDSkipsPermissions(t *testing.T) {
	backend := staffBackend()
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		return &models.User{Nickname: "ghost"}, nil
	}
	m := New(newStore(t, "tok"), backend, nil, nil)

	m.Bootstrap(context.Background())

	assert.Zero(t, backend.permCalls.Load())
	assert.Empty(t, m.Permissions())
	assert.NotNil(t, m.User())
}

func TestLogin_StoresTokenThenLoadsUser(t *testing.T) {
	var got models.LoginRequest
	backend := staffBackend()
	backend.LoginFunc = func(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
		got = req
		return &models.LoginResponse{Token: "tok1"}, nil
	}
	store := newStore(t, "")
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		// the token must already be persisted when the profile is fetched
		assert.Equal(t, "tok1", store.Token())
		return &models.User{ID: 9, Role: models.RoleUser}, nil
	}
	m := New(store, backend, nil, nil)

	req := models.LoginRequest{Username: "a", Password: "b", CaptchaID: "1", CaptchaCode: "9999"}
	require.NoError(t, m.Login(context.Background(), req))

	assert.Equal(t, req, got)
	assert.Equal(t, "tok1", store.Token())
	require.NotNil(t, m.User())
	assert.Equal(t, int64(9), m.User().ID)
	assert.True(t, m.HasPermission("order:refund"))
	assert.Equal(t, LoadResolved, m.Loading())
}

func TestDevLogin(t *testing.T) {
	store := newStore(t, "")
	m := New(store, staffBackend(), nil, nil)

	require.NoError(t, m.DevLogin(context.Background(), "admin_openid"))
	assert.Equal(t, "dev-admin_openid", store.Token())
	assert.NotNil(t, m.User())
}

func TestLogin_NoToken(t *testing.T) {
	backend := staffBackend()
	backend.LoginFunc = func(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
		return &models.LoginResponse{}, nil
	}
	store := newStore(t, "")
	m := New(store, backend, nil, nil)

	err := m.Login(context.Background(), models.LoginRequest{})
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Empty(t, store.Token())
	assert.Zero(t, backend.userCalls.Load())
}

func TestLogin_BackendErrorKeepsPreviousSession(t *testing.T) {
	backend := staffBackend()
	store := newStore(t, "previous")
	m := New(store, backend, nil, nil)
	m.Bootstrap(context.Background())

	wantErr := errors.New("invalid captcha")
	backend.LoginFunc = func(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
		return nil, wantErr
	}
	err := m.Login(context.Background(), models.LoginRequest{Username: "x"})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, "previous", store.Token())
	assert.NotNil(t, m.User())
}

func TestLogin_ProfileFailureLeavesUnauthenticated(t *testing.T) {
	backend := staffBackend()
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		return nil, errors.New("boom")
	}
	store := newStore(t, "")
	m := New(store, backend, nil, nil)

	err := m.Login(context.Background(), models.LoginRequest{})
	require.Error(t, err)
	assert.Empty(t, store.Token())
	assert.Nil(t, m.User())
	assert.Equal(t, LoadResolved, m.Loading())
}

func TestLoginThenLogout(t *testing.T) {
	store := newStore(t, "")
	m := New(store, staffBackend(), nil, nil)

	require.NoError(t, m.Login(context.Background(), models.LoginRequest{Username: "a"}))
	m.Logout()

	assert.Empty(t, store.Token())
	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "token file must be removed")
	assert.Nil(t, m.User())
	assert.Empty(t, m.Permissions())
}

func TestLogout_WinsOverInFlightBootstrap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := staffBackend()
	backend.CurrentUserFunc = func(ctx context.Context) (*models.User, error) {
		close(started)
		<-release
		return &models.User{ID: 1, Role: models.RoleAdmin}, nil
	}
	store := newStore(t, "tok")
	m := New(store, backend, nil, nil)

	done := make(chan struct{})
	go func() {
		m.Bootstrap(context.Background())
		close(done)
	}()

	<-started
	m.Logout()
	close(release)
	<-done

	assert.Nil(t, m.User())
	assert.Empty(t, store.Token())
	assert.False(t, m.HasPermission("anything"))
	assert.Zero(t, backend.permCalls.Load())
}

func TestRenew_ReplacesToken(t *testing.T) {
	store := newStore(t, "saved")
	m := New(store, staffBackend(), nil, nil)
	m.Bootstrap(context.Background())

	require.NoError(t, m.Renew(context.Background()))

	assert.Equal(t, "renewed", store.Token())
	require.NotNil(t, m.User())
	assert.Equal(t, int64(5), m.User().ID)
	assert.True(t, m.HasPermission("order:refund"))

	reloaded := tokenstore.New(store.Path())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "renewed", reloaded.Token())
}

func TestRenew_NotSignedIn(t *testing.T) {
	backend := staffBackend()
	backend.RefreshTokenFunc = func(ctx context.Context) (string, error) {
		t.Fatal("renewal must not hit the backend without a token")
		return "", nil
	}
	m := New(newStore(t, ""), backend, nil, nil)
	m.Bootstrap(context.Background())

	assert.ErrorIs(t, m.Renew(context.Background()), ErrNotSignedIn)
}

func TestRenew_EmptyTokenKeepsSession(t *testing.T) {
	backend := staffBackend()
	backend.RefreshTokenFunc = func(ctx context.Context) (string, error) {
		return "", nil
	}
	store := newStore(t, "saved")
	m := New(store, backend, nil, nil)
	m.Bootstrap(context.Background())

	assert.ErrorIs(t, m.Renew(context.Background()), ErrNoToken)
	assert.Equal(t, "saved", store.Token())
	assert.NotNil(t, m.User())
}

func TestLogout_WinsOverInFlightRenewal(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := staffBackend()
	backend.RefreshTokenFunc = func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "renewed", nil
	}
	store := newStore(t, "saved")
	m := New(store, backend, nil, nil)
	m.Bootstrap(context.Background())
	require.NotNil(t, m.User())

	errc := make(chan error, 1)
	go func() { errc <- m.Renew(context.Background()) }()

	<-started
	m.Logout()
	close(release)

	assert.ErrorIs(t, <-errc, ErrSessionChanged)
	assert.Empty(t, m.Token())
	assert.Nil(t, m.User())
	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "renewal must not write the token back")
}

func TestUnauthorizedSignalClearsUser(t *testing.T) {
	bus := eventbus.New()
	store := newStore(t, "tok")
	m := New(store, staffBackend(), bus, nil)
	defer m.Close()
	m.Bootstrap(context.Background())
	require.NotNil(t, m.User())

	// the HTTP layer clears the token, then publishes
	require.NoError(t, store.SetToken(""))
	bus.Publish(eventbus.Unauthorized{Path: "/api/v1/admin/orders"})

	assert.Nil(t, m.User())
	assert.Empty(t, m.Permissions())
}

func TestChanges_NotifiesObservers(t *testing.T) {
	m := New(newStore(t, ""), staffBackend(), nil, nil)
	var calls atomic.Int32
	stop := m.Changes(func() { calls.Add(1) })

	m.Bootstrap(context.Background())
	assert.Positive(t, calls.Load())

	stop()
	before := calls.Load()
	m.Logout()
	assert.Equal(t, before, calls.Load())
}

// End to end through the real HTTP client: an expired persisted token
// answered with 401 ends unauthenticated.
func TestBootstrap_ExpiredTokenOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":1006,"message":"token expired"}`))
	}))
	defer ts.Close()

	bus := eventbus.New()
	var fired atomic.Int32
	bus.Subscribe(func(eventbus.Unauthorized) { fired.Add(1) })

	store := newStore(t, "stale")
	client, err := api.New(ts.URL, store, bus, api.WithTimeout(time.Second))
	require.NoError(t, err)
	m := New(store, client, bus, nil)
	defer m.Close()

	m.Bootstrap(context.Background())

	assert.Equal(t, LoadResolved, m.Loading())
	assert.Empty(t, store.Token())
	assert.Nil(t, m.User())
	assert.Equal(t, int32(1), fired.Load())
}
