package postgres

import (
	"context"
	"fmt"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/domain/repository"
)

type RefreshTokenRepository struct {
	db DBTX
}

func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *entity.RefreshToken) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, t.Token, t.UserID, t.ExpiresAt)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", mapErr(err))
	}
	return nil
}

func (r *RefreshTokenRepository) Find(ctx context.Context, token string) (*entity.RefreshToken, error) {
	t := &entity.RefreshToken{}
	err := r.db.QueryRow(ctx, `
		SELECT token, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1 AND expires_at > now()
	`, token).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

// Delete is idempotent: removing an absent row is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user refresh tokens: %w", mapErr(err))
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`); err != nil {
		return fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return nil
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
