package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/go-user-auth/internal/domain/repository"
)

const (
	codeUniqueViolation   = "23505"
	codeInvalidTextRepr   = "22P02"
	codeForeignKeyViolate = "23503"
)

// mapErr translates driver errors into repository sentinels. Anything it
// does not recognise is returned as is.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return repository.ErrDuplicate
		case codeInvalidTextRepr, codeForeignKeyViolate:
			// malformed uuid or dangling user reference
			return repository.ErrNotFound
		}
	}
	return err
}
