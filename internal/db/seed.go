package db

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
)

// DemoUser is an account created by Seed.
type DemoUser struct {
	Username string
	Password string
	Nickname string
	Role     string
	StoreID  int64
	// Roles are RBAC roles granted to the user.
	Roles []string
}

// DemoUsers are the accounts of a local installation.
var DemoUsers = []DemoUser{
	{Username: "admin", Password: "admin123", Nickname: "Administrator", Role: "admin"},
	{Username: "clerk", Password: "clerk123", Nickname: "Order clerk", Role: "user", Roles: []string{"order_clerk"}},
	{Username: "store", Password: "store123", Nickname: "Store manager", Role: "store", StoreID: 1, Roles: []string{"store_manager"}},
}

// demoGrants maps RBAC roles to their permissions.
var demoGrants = map[string][]string{
	"order_clerk":   {"order:deliver", "order:complete", "order:cancel"},
	"store_manager": {"order:deliver", "order:complete", "order:cancel", "order:refund"},
	"system_admin":  {"admin:user:manage", "system:config:manage"},
}

// Seed creates the demo roles, permissions and users. Existing rows are
// kept. hash turns a password into the stored hash.
func Seed(ctx context.Context, db *sql.DB, hash func(password string) ([]byte, error)) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, role := range slices.Sorted(maps.Keys(demoGrants)) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role); err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
		for _, perm := range demoGrants[role] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO permissions (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, perm); err != nil {
				return fmt.Errorf("seed permission %s: %w", perm, err)
			}
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO role_permissions (role_id, permission_id)
                SELECT r.id, p.id FROM roles r, permissions p
                 WHERE r.name = $1 AND p.name = $2
                ON CONFLICT DO NOTHING`, role, perm); err != nil {
				return fmt.Errorf("seed grant %s/%s: %w", role, perm, err)
			}
		}
	}

	for _, u := range DemoUsers {
		h, err := hash(u.Password)
		if err != nil {
			return fmt.Errorf("hash password of %s: %w", u.Username, err)
		}
		var storeID sql.NullInt64
		if u.StoreID > 0 {
			storeID = sql.NullInt64{Int64: u.StoreID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO users (username, nickname, role, store_id, password_hash)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (username) DO NOTHING`,
			u.Username, u.Nickname, u.Role, storeID, h); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		for _, role := range u.Roles {
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO user_roles (user_id, role_id)
                SELECT u.id, r.id FROM users u, roles r
                 WHERE u.username = $1 AND r.name = $2
                ON CONFLICT DO NOTHING`, u.Username, role); err != nil {
				return fmt.Errorf("seed user role %s/%s: %w", u.Username, role, err)
			}
		}
	}

	return tx.Commit()
}

