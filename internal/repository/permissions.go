package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresPermissionRepository resolves RBAC grants.
type PostgresPermissionRepository struct {
	DB *sql.DB
}

// NewPostgresPermissionRepository creates a new PostgresPermissionRepository.
func NewPostgresPermissionRepository(db *sql.DB) *PostgresPermissionRepository {
	return &PostgresPermissionRepository{DB: db}
}

// UserPermissions returns the names of every permission granted to userID
// through its roles, sorted and without duplicates.
func (r *PostgresPermissionRepository) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT DISTINCT p.name
		  FROM permissions p
		  JOIN role_permissions rp ON rp.permission_id = p.id
		  JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1
		 ORDER BY p.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("UserPermissions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("UserPermissions scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("UserPermissions rows: %w", err)
	}
	return names, nil
}
