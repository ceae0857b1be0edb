package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresCaptchaRepository stores login captchas until they are used or
// expire.
type PostgresCaptchaRepository struct {
	DB *sql.DB
}

// NewPostgresCaptchaRepository creates a new PostgresCaptchaRepository.
func NewPostgresCaptchaRepository(db *sql.DB) *PostgresCaptchaRepository {
	return &PostgresCaptchaRepository{DB: db}
}

// Save stores code under id until expiresAt.
func (r *PostgresCaptchaRepository) Save(ctx context.Context, id, code string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO captchas (id, code, expires_at) VALUES ($1, $2, $3)`,
		id, code, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save captcha: %w", err)
	}
	return nil
}

// Consume deletes the captcha id and returns its code. A captcha can be
// consumed once; an unknown or expired id yields ErrNotFound.
func (r *PostgresCaptchaRepository) Consume(ctx context.Context, id string, now time.Time) (string, error) {
	var code string
	err := r.DB.QueryRowContext(ctx, `
		DELETE FROM captchas WHERE id = $1 AND expires_at > $2 RETURNING code
	`, id, now).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume captcha: %w", err)
	}
	return code, nil
}
