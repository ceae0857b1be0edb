// Package repository provides persistence implementations for the mock admin
// backend using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/atinyakov/teaadmin/internal/models"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// uniqueViolation is the Postgres error code of a duplicate key.
const uniqueViolation = "23505"

const userColumns = `id, username, nickname, role, store_id, open_id, password_hash`

// PostgresUserRepository reads and creates admin accounts.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository with the
// given database connection.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// FindByID returns the user with id, or ErrNotFound.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByUsername returns the user with username, or ErrNotFound.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// FindByOpenID returns the user bound to openid, or ErrNotFound.
func (r *PostgresUserRepository) FindByOpenID(ctx context.Context, openid string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE open_id = $1`, openid)
}

// CreateByOpenID creates a plain user bound to openid. When a concurrent
// request created it first, that user is returned.
func (r *PostgresUserRepository) CreateByOpenID(ctx context.Context, openid, nickname string) (*models.User, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (nickname, role, open_id) VALUES ($1, $2, $3) RETURNING id
	`, nickname, models.RoleUser, openid).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return r.FindByOpenID(ctx, openid)
		}
		return nil, fmt.Errorf("CreateByOpenID: %w", err)
	}
	return &models.User{ID: id, Nickname: nickname, Role: models.RoleUser, OpenID: openid}, nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		u        models.User
		username sql.NullString
		openID   sql.NullString
		storeID  sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &username, &u.Nickname, &u.Role, &storeID, &openID, &u.PasswordHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Username = username.String
	u.OpenID = openID.String
	if storeID.Valid {
		id := storeID.Int64
		u.StoreID = &id
	}
	return &u, nil
}
