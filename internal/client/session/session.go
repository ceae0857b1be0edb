// Package session owns the admin session: the token lifecycle, the current
// user and the permission cache. It is the only writer of that state.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/client/eventbus"
	"github.com/atinyakov/teaadmin/internal/models"
)

var (
	// ErrNoToken is returned when a login or renewal succeeds without
	// issuing a token.
	ErrNoToken = errors.New("backend issued no token")
	// ErrNotSignedIn is returned by Renew without an active session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSessionChanged is returned by Renew when the session was signed out
	// or replaced while the renewal was in flight.
	ErrSessionChanged = errors.New("session changed during renewal")
)

// LoadState gates whether a guard may render an allow/deny decision.
type LoadState int

const (
	// LoadUndetermined is the zero value of an unconstructed session.
	LoadUndetermined LoadState = iota
	// LoadResolving means the initial bootstrap has not finished.
	LoadResolving
	// LoadResolved means token, user and permissions are settled.
	LoadResolved
)

func (s LoadState) String() string {
	switch s {
	case LoadResolving:
		return "resolving"
	case LoadResolved:
		return "resolved"
	default:
		return "undetermined"
	}
}

// TokenStore persists the bearer token.
type TokenStore interface {
	Token() string
	SetToken(token string) error
}

// Backend is the subset of the API client the session calls.
type Backend interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	DevLogin(ctx context.Context, openid string) (*models.LoginResponse, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	RefreshToken(ctx context.Context) (string, error)
}

// Subscriber registers for the unauthorized signal.
type Subscriber interface {
	Subscribe(fn func(eventbus.Unauthorized)) (unsubscribe func())
}

// Manager is the session context shared by the whole client.
type Manager struct {
	store   TokenStore
	backend Backend
	log     *zap.Logger

	mu          sync.RWMutex
	user        *models.User
	permissions map[string]struct{}
	loading     LoadState
	// generation changes with every token change; fetch results carrying an
	// older generation are dropped.
	generation uint64

	obsMu     sync.Mutex
	observers map[int]func()
	nextObs   int

	unsubscribe func()
}

// New creates a Manager in the LoadResolving state. When events is non-nil
// the Manager drops user and permissions as soon as the backend rejects the
// token.
func New(store TokenStore, backend Backend, events Subscriber, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:       store,
		backend:     backend,
		log:         log,
		permissions: map[string]struct{}{},
		loading:     LoadResolving,
		observers:   map[int]func(){},
	}
	if events != nil {
		m.unsubscribe = events.Subscribe(m.onUnauthorized)
	}
	return m
}

// Close releases the unauthorized subscription.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Bootstrap settles the session at startup. Without a persisted token it
// resolves without any network call. With one it fetches the user and the
// permissions; any failure to fetch the user clears the session.
func (m *Manager) Bootstrap(ctx context.Context) {
	gen := m.currentGeneration()
	if m.store.Token() == "" {
		m.mu.Lock()
		if m.generation == gen {
			m.user = nil
			m.permissions = map[string]struct{}{}
			m.loading = LoadResolved
		}
		m.mu.Unlock()
		m.notify()
		return
	}

	if err := m.loadUser(ctx, gen); err != nil {
		m.log.Info("stored session is no longer valid", zap.Error(err))
		m.clear(gen)
	}

	m.mu.Lock()
	m.loading = LoadResolved
	m.mu.Unlock()
	m.notify()
}

// Login performs a password login, stores the token, then loads the user and
// the permissions. Failures leave the previous session untouched.
func (m *Manager) Login(ctx context.Context, req models.LoginRequest) error {
	resp, err := m.backend.Login(ctx, req)
	if err != nil {
		return err
	}
	return m.establish(ctx, resp)
}

// DevLogin is Login for the non-production openid shortcut.
func (m *Manager) DevLogin(ctx context.Context, openid string) error {
	resp, err := m.backend.DevLogin(ctx, openid)
	if err != nil {
		return err
	}
	return m.establish(ctx, resp)
}

func (m *Manager) establish(ctx context.Context, resp *models.LoginResponse) error {
	if resp == nil || resp.Token == "" {
		return ErrNoToken
	}

	m.mu.Lock()
	if err := m.store.SetToken(resp.Token); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("store token: %w", err)
	}
	m.generation++
	gen := m.generation
	m.user = nil
	m.permissions = map[string]struct{}{}
	m.mu.Unlock()

	err := m.loadUser(ctx, gen)
	if err != nil {
		m.clear(gen)
	}

	m.mu.Lock()
	m.loading = LoadResolved
	m.mu.Unlock()
	m.notify()

	if err != nil {
		return fmt.Errorf("load current user: %w", err)
	}
	return nil
}

// loadUser fetches the user and, for a user with an identifier, the
// permissions. Results are only written while gen is still current.
func (m *Manager) loadUser(ctx context.Context, gen uint64) error {
	me, err := m.backend.CurrentUser(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil
	}
	m.user = me
	m.mu.Unlock()
	m.notify()

	if !me.HasID() {
		m.setPermissions(gen, nil)
		return nil
	}
	m.fetchPermissions(ctx, gen, me.ID)
	return nil
}

// Renew exchanges the session token for a fresh one. The renewed token
// belongs to the same session, so the generation is kept. A logout or a new
// login during the call wins and the renewed token is discarded.
func (m *Manager) Renew(ctx context.Context) error {
	gen := m.currentGeneration()
	if m.store.Token() == "" {
		return ErrNotSignedIn
	}

	token, err := m.backend.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	if token == "" {
		return ErrNoToken
	}

	m.mu.Lock()
	// A 401 elsewhere clears the store before the generation moves.
	if m.generation != gen || m.store.Token() == "" {
		m.mu.Unlock()
		m.log.Debug("dropping renewed token for a finished session")
		return ErrSessionChanged
	}
	if err := m.store.SetToken(token); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("store token: %w", err)
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

// Logout clears user, token and permissions. No network call is made.
func (m *Manager) Logout() {
	m.mu.Lock()
	if err := m.store.SetToken(""); err != nil {
		m.log.Warn("failed to clear token on logout", zap.Error(err))
	}
	m.generation++
	m.user = nil
	m.permissions = map[string]struct{}{}
	m.loading = LoadResolved
	m.mu.Unlock()
	m.notify()
}

// onUnauthorized runs after the API client already cleared the token.
func (m *Manager) onUnauthorized(eventbus.Unauthorized) {
	m.mu.Lock()
	m.generation++
	m.user = nil
	m.permissions = map[string]struct{}{}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) clear(gen uint64) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	if err := m.store.SetToken(""); err != nil {
		m.log.Warn("failed to clear token", zap.Error(err))
	}
	m.generation++
	m.user = nil
	m.permissions = map[string]struct{}{}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Token returns the active bearer token.
func (m *Manager) Token() string {
	return m.store.Token()
}

// User returns a copy of the session user, or nil. A user is never returned
// without a token.
func (m *Manager) User() *models.User {
	if m.store.Token() == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Loading reports the bootstrap state.
func (m *Manager) Loading() LoadState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Changes registers fn to be called after every session state change and
// returns a func that removes it.
func (m *Manager) Changes(fn func()) (stop func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) notify() {
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
