package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/domain/repository"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var userCols = []string{"id", "name", "email", "password_hash", "age", "role", "active", "email_verified", "created_at", "updated_at"}

func intPtr(i int) *int { return &i }

func TestUserCreate_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	u := &entity.User{Name: "A", Email: "a@x.com", PasswordHash: "hash", Age: intPtr(20), Active: true}
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users.*RETURNING\s+id`).
		WithArgs("A", "a@x.com", "hash", u.Age, "user", true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email_verified", "created_at", "updated_at"}).
			AddRow("11111111-1111-1111-1111-111111111111", false, now, now))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", u.ID)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Equal(t, now, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WithArgs("A", "a@x.com", "hash", (*int)(nil), "admin", true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &entity.User{Name: "A", Email: "a@x.com", PasswordHash: "hash", Role: entity.RoleAdmin, Active: true})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUserGetByEmail_ActiveFilter(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s+AND\s+active\s*=\s*TRUE`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u1", "A", "a@x.com", "hash", intPtr(30), "admin", true, true, now, now))

	u, err := repo.GetByEmail(context.Background(), "a@x.com", false)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, u.Role)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.Equal(t, 30, *u.Age)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmail_IncludeInactive(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`).
		WithArgs("a@x.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "a@x.com", true)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByID_MalformedID(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserGetByID_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	boom := errors.New("conn refused")
	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnError(boom)

	_, err := repo.GetByID(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
}

func TestUserUpdatePassword(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$1`).
		WithArgs("newhash", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$1`).
		WithArgs("newhash", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u1", "newhash"))
	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), "missing", "newhash"), repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdate_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	u := &entity.User{ID: "u1", Name: "A", Email: "taken@x.com", Role: entity.RoleUser, Active: true}
	mock.ExpectQuery(`(?s)UPDATE\s+users\s+SET\s+name`).
		WithArgs("A", "taken@x.com", (*int)(nil), "user", true, "u1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, repo.Update(context.Background(), u), repository.ErrDuplicate)
}

func TestUserDelete(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "u1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "u2"), repository.ErrNotFound)
}

func TestUserSearch_EscapesPattern(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery(`(?s)WHERE\s+name\s+ILIKE\s+\$1\s+OR\s+email\s+ILIKE\s+\$1`).
		WithArgs(`%50\%\_off%`, 10).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u1", "A", "a@x.com", "", intPtr(1), "user", true, false, now, now).
			AddRow("u2", "B", "b@x.com", "", intPtr(2), "user", false, false, now, now))

	us, err := repo.Search(context.Background(), "50%_off", 0)
	require.NoError(t, err)
	require.Len(t, us, 2)
	assert.Equal(t, "u2", us[1].ID)
	assert.False(t, us[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserList_ClampsLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`(?s)ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$1\s+OFFSET\s+\$2`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(userCols))

	us, err := repo.List(context.Background(), repository.ListFilter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Empty(t, us)
	require.NoError(t, mock.ExpectationsWereMet())
}
