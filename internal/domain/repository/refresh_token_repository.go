package repository

import (
	"context"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
)

// RefreshTokenRepository persists refresh token rows.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *entity.RefreshToken) error
	// Find returns ErrNotFound for absent and for expired rows.
	Find(ctx context.Context, token string) (*entity.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) error
}
