package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartCaptchaCleaner deletes expired captchas every interval until ctx is
// done.
func StartCaptchaCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := db.ExecContext(ctx, `
                    DELETE FROM captchas
                     WHERE expires_at < $1
                `, time.Now())
				if err != nil {
					log.Error("failed to clean expired captchas", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("cleaned expired captchas", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
