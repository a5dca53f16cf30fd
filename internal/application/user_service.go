package application

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
)

// UserService is the administrative side of user records: listing,
// creation, update, deletion and profile search.
type UserService struct {
	users  repo.UserRepository
	tokens repo.RefreshTokenRepository
	hasher *helpers.PasswordHasher
	index  repo.UserSearchIndex
	logger *logrus.Logger
}

func NewUserService(users repo.UserRepository, tokens repo.RefreshTokenRepository, hasher *helpers.PasswordHasher, index repo.UserSearchIndex, logger *logrus.Logger) *UserService {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &UserService{users: users, tokens: tokens, hasher: hasher, index: index, logger: logger}
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string // optional; an account without one cannot log in
	Age      *int
	Role     string
	Active   *bool
}

// UpdateUserInput only applies non-nil fields.
type UpdateUserInput struct {
	Name   *string
	Email  *string
	Age    *int
	Role   *string
	Active *bool
}

func (s *UserService) List(ctx context.Context, f repo.ListFilter) ([]*entity.PublicUser, error) {
	us, err := s.users.List(ctx, f)
	if err != nil {
		return nil, infra("list users", err)
	}
	return entity.PublicUsers(us), nil
}

// Get returns any user to an admin, and only themselves to everyone else.
func (s *UserService) Get(ctx context.Context, requester *entity.PublicUser, id string) (*entity.PublicUser, error) {
	if requester == nil {
		return nil, ErrUnauthorized
	}
	if !requester.IsAdmin() && requester.ID != id {
		return nil, ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infra("find user", err)
	}
	return u.Public(), nil
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*entity.PublicUser, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)

	v := &ValidationError{}
	if name == "" {
		v.add("name", "is required")
	}
	if !validEmail(email) {
		v.add("email", "must be a valid email")
	}
	if in.Password != "" {
		checkPassword(v, "password", in.Password)
	}
	checkAge(v, in.Age)
	role, err := entity.ParseRole(in.Role)
	if err != nil {
		v.add("role", "must be one of: user, admin")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	u := &entity.User{Name: name, Email: email, Age: in.Age, Role: role, Active: true}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if in.Password != "" {
		if u.PasswordHash, err = s.hasher.Hash(ctx, in.Password); err != nil {
			return nil, infra("hash password", err)
		}
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, infra("insert user", err)
	}

	pub := u.Public()
	s.reindex(ctx, pub)
	return pub, nil
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*entity.PublicUser, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infra("find user", err)
	}

	v := &ValidationError{}
	if in.Name != nil {
		if u.Name = strings.TrimSpace(*in.Name); u.Name == "" {
			v.add("name", "is required")
		}
	}
	if in.Email != nil {
		if u.Email = NormalizeEmail(*in.Email); !validEmail(u.Email) {
			v.add("email", "must be a valid email")
		}
	}
	if in.Age != nil {
		checkAge(v, in.Age)
		a := *in.Age
		u.Age = &a
	}
	if in.Role != nil {
		role, err := entity.ParseRole(*in.Role)
		if err != nil || strings.TrimSpace(*in.Role) == "" {
			v.add("role", "must be one of: user, admin")
		}
		u.Role = role
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// UpdateProfile is the self-service edit; role and active flag stay untouched.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, name, email *string, age *int) (*entity.PublicUser, error) {
	return s.Update(ctx, userID, UpdateUserInput{Name: name, Email: email, Age: age})
}

// Delete removes the user and every refresh token it held.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.tokens.DeleteByUser(ctx, id); err != nil {
		return infra("revoke refresh tokens", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return infra("delete user", err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.WithError(err).WithField("user_id", id).Warn("es delete failed")
		}
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

// Search uses the profile index when configured and falls back to the store
// when the index is absent or failing.
func (s *UserService) Search(ctx context.Context, q string, limit int) ([]*entity.PublicUser, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, invalid("q", "is required")
	}
	if s.index != nil {
		res, err := s.index.Search(ctx, q, limit)
		if err == nil {
			return res, nil
		}
		s.logger.WithError(err).Warn("es search failed, falling back to database")
	}
	us, err := s.users.Search(ctx, q, limit)
	if err != nil {
		return nil, infra("search users", err)
	}
	return entity.PublicUsers(us), nil
}

func (s *UserService) save(ctx context.Context, u *entity.User) error {
	if err := s.users.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return ErrDuplicateIdentity
		case errors.Is(err, repo.ErrNotFound):
			return ErrUserNotFound
		}
		return infra("update user", err)
	}
	s.reindex(ctx, u.Public())
	return nil
}

func (s *UserService) reindex(ctx context.Context, u *entity.PublicUser) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, u); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
	}
}

// EnsureAdmin creates the administrator or, when the email already exists,
// promotes and reactivates that row and resets its password. Existing
// refresh tokens of a reset account are revoked.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (*entity.PublicUser, bool, error) {
	email = NormalizeEmail(email)
	v := &ValidationError{}
	if !validEmail(email) {
		v.add("email", "must be a valid email")
	}
	checkPassword(v, "password", password)
	if err := v.orNil(); err != nil {
		return nil, false, err
	}

	u, err := s.users.GetByEmail(ctx, email, true)
	if errors.Is(err, repo.ErrNotFound) {
		pub, err := s.Create(ctx, CreateUserInput{Name: name, Email: email, Password: password, Role: entity.RoleAdmin.String()})
		return pub, err == nil, err
	}
	if err != nil {
		return nil, false, infra("find user by email", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, false, infra("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, false, infra("update password", err)
	}
	if err := s.tokens.DeleteByUser(ctx, u.ID); err != nil {
		return nil, false, infra("revoke refresh tokens", err)
	}
	u.Role = entity.RoleAdmin
	u.Active = true
	if err := s.save(ctx, u); err != nil {
		return nil, false, err
	}
	return u.Public(), false, nil
}
