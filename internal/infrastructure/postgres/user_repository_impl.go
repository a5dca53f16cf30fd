package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/domain/repository"
)

const userColumns = `id, name, email, COALESCE(password_hash, ''), age, role, active, email_verified, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	u := &entity.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Age, &role,
		&u.Active, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = entity.Role(role)
	return u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, age, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email_verified, created_at, updated_at
	`, u.Name, u.Email, nullable(u.PasswordHash), u.Age, string(u.Role), u.Active)

	if err := row.Scan(&u.ID, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string, includeInactive bool) (*entity.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	if !includeInactive {
		q += ` AND active = TRUE`
	}
	u, err := scanUser(r.db.QueryRow(ctx, q, email))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $1, updated_at = now()
		WHERE id = $2
	`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", mapErr(err))
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	row := r.db.QueryRow(ctx, `
		UPDATE users
		SET name = $1, email = $2, age = $3, role = $4, active = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`, u.Name, u.Email, u.Age, string(u.Role), u.Active, u.ID)
	if err := row.Scan(&u.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET email_verified = TRUE, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the user; refresh_tokens rows go with it through ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, f repository.ListFilter) ([]entity.User, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *UserRepository) Search(ctx context.Context, term string, limit int) ([]entity.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	pattern := "%" + escapeLike(term) + "%"
	return r.query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE name ILIKE $1 OR email ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, pattern, limit)
}

func (r *UserRepository) query(ctx context.Context, q string, args ...any) ([]entity.User, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]entity.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var _ repository.UserRepository = (*UserRepository)(nil)
