package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// ListFilter pages through users, newest first.
type ListFilter struct {
	Limit  int
	Offset int
}

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	// GetByID returns the row regardless of its active flag.
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string, includeInactive bool) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	Update(ctx context.Context, u *entity.User) error
	SetVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]entity.User, error)
	Search(ctx context.Context, term string, limit int) ([]entity.User, error)
}

// UserSearchIndex is an optional full-text index of sanitized profiles.
type UserSearchIndex interface {
	Index(ctx context.Context, u *entity.PublicUser) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, term string, limit int) ([]*entity.PublicUser, error)
}
