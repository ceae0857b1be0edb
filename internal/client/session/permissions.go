package session

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

// HasPermission reports whether the session user may use the capability
// name. An empty name requires nothing; the admin role is always allowed.
func (m *Manager) HasPermission(name string) bool {
	if name == "" {
		return true
	}
	if m.store.Token() == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user.IsAdmin() {
		return true
	}
	_, ok := m.permissions[name]
	return ok
}

// Permissions returns the cached permission names, sorted.
func (m *Manager) Permissions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.permissions))
	for p := range m.permissions {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// RefreshPermissions re-fetches the permission set of the session user, or
// clears it when there is none. It never fails: a fetch error leaves an
// empty set.
func (m *Manager) RefreshPermissions(ctx context.Context) {
	m.mu.RLock()
	gen := m.generation
	var userID int64
	if m.user.HasID() {
		userID = m.user.ID
	}
	m.mu.RUnlock()

	if userID == 0 || m.store.Token() == "" {
		m.setPermissions(gen, nil)
		return
	}
	m.fetchPermissions(ctx, gen, userID)
}

func (m *Manager) fetchPermissions(ctx context.Context, gen uint64, userID int64) {
	list, err := m.backend.UserPermissions(ctx, userID)
	if err != nil {
		m.log.Warn("cannot fetch permission list", zap.Int64("user_id", userID), zap.Error(err))
		list = nil
	}
	m.setPermissions(gen, list)
}

func (m *Manager) setPermissions(gen uint64, list []string) {
	set := make(map[string]struct{}, len(list))
	for _, p := range list {
		set[p] = struct{}{}
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.permissions = set
	m.mu.Unlock()
	m.notify()
}

// StartPermissionRefresher refreshes permissions every interval until ctx
// is done. A refresh that hits a revoked token goes through the same 401
// handling as any other request.
func (m *Manager) StartPermissionRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.User() == nil {
					continue
				}
				m.RefreshPermissions(ctx)
				m.log.Debug("permissions refreshed", zap.Int("count", len(m.Permissions())))
			}
		}
	}()
}
