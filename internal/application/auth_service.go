package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/go-user-auth/pkg/mailer/templates"
)

// MinPasswordLength applies to registration and password change.
const MinPasswordLength = 6

// Publisher puts a JSON job on the email queue.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// AuthService orchestrates registration, login, token refresh and
// revocation, and password change.
type AuthService struct {
	users  repo.UserRepository
	tokens repo.RefreshTokenRepository
	hasher *helpers.PasswordHasher
	jwt    *helpers.JWTManager
	logger *logrus.Logger

	appName string
	index   repo.UserSearchIndex
	mail    Publisher
	now     func() time.Time
}

type Option func(*AuthService)

// WithSearchIndex mirrors registered profiles into idx.
func WithSearchIndex(idx repo.UserSearchIndex) Option {
	return func(s *AuthService) { s.index = idx }
}

// WithMailer enqueues notification emails through p.
func WithMailer(p Publisher) Option {
	return func(s *AuthService) { s.mail = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(cfg *config.Config, users repo.UserRepository, tokens repo.RefreshTokenRepository, hasher *helpers.PasswordHasher, jwt *helpers.JWTManager, logger *logrus.Logger, opts ...Option) *AuthService {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	s := &AuthService{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		jwt:     jwt,
		logger:  logger,
		appName: cfg.AppName,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Age      *int
	Role     string
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

var emailCheck = validator.New()

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validEmail(s string) bool { return s != "" && emailCheck.Var(s, "email") == nil }

func checkPassword(v *ValidationError, field, pw string) {
	switch {
	case len(pw) < MinPasswordLength:
		v.add(field, "must be at least 6 characters long")
	case len(pw) > helpers.MaxPasswordBytes:
		v.add(field, "must be at most 72 characters long")
	}
}

func checkAge(v *ValidationError, age *int) {
	if age != nil && (*age < 0 || *age > 150) {
		v.add("age", "must be between 0 and 150")
	}
}

// Register creates an active account. Tokens are issued separately with IssueTokens.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*entity.PublicUser, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)

	v := &ValidationError{}
	if name == "" {
		v.add("name", "is required")
	}
	if !validEmail(email) {
		v.add("email", "must be a valid email")
	}
	checkPassword(v, "password", in.Password)
	checkAge(v, in.Age)
	role, err := entity.ParseRole(in.Role)
	if err != nil {
		v.add("role", "must be one of: user, admin")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email, true); err == nil {
		return nil, ErrDuplicateIdentity
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, infra("find user by email", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, infra("hash password", err)
	}

	u := &entity.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Age:          in.Age,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// a concurrent registration won the unique index
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, infra("insert user", err)
	}

	s.logger.WithField("user_id", u.ID).Info("user registered")
	pub := u.Public()
	s.indexProfile(ctx, pub)
	s.enqueue(ctx, mailer.EmailJob{To: u.Email, Template: mailtpl.Welcome, Data: mailtpl.NewWelcomeData(s.appName, u.Name, u.Email)})
	return pub, nil
}

// Login resolves an active user by email and password. Unknown email and
// wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*entity.PublicUser, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("credentials", "email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email, false)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.hasher.Burn(ctx, password)
			return nil, ErrInvalidCredentials
		}
		return nil, infra("find user by email", err)
	}
	if !s.hasher.Verify(ctx, password, u.PasswordHash) {
		if ctx.Err() != nil {
			return nil, infra("verify password", ctx.Err())
		}
		return nil, ErrInvalidCredentials
	}
	return u.Public(), nil
}

// IssueTokens signs an access and a refresh token for userID. The user's
// previous refresh rows and every expired row are purged before the new row
// is stored, so at most one refresh token per user stays live.
func (s *AuthService) IssueTokens(ctx context.Context, userID string) (TokenPair, error) {
	access, aexp, err := s.jwt.GenerateAccessToken(userID)
	if err != nil {
		return TokenPair{}, infra("sign access token", err)
	}
	refresh, rexp, err := s.jwt.GenerateRefreshToken(userID)
	if err != nil {
		return TokenPair{}, infra("sign refresh token", err)
	}

	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return TokenPair{}, infra("purge user refresh tokens", err)
	}
	if err := s.tokens.DeleteExpired(ctx); err != nil {
		return TokenPair{}, infra("purge expired refresh tokens", err)
	}
	row := &entity.RefreshToken{Token: refresh, UserID: userID, ExpiresAt: rexp}
	if err := s.tokens.Create(ctx, row); err != nil {
		return TokenPair{}, infra("store refresh token", err)
	}

	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// RefreshAccessToken mints a new access token from a stored refresh token.
// The refresh token itself is not rotated.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, *entity.PublicUser, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", time.Time{}, nil, ErrInvalidRefreshToken
	}

	row, err := s.tokens.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", time.Time{}, nil, ErrInvalidRefreshToken
		}
		return "", time.Time{}, nil, infra("find refresh token", err)
	}
	if row.Expired(s.now()) {
		return "", time.Time{}, nil, ErrInvalidRefreshToken
	}

	claims, err := s.jwt.ParseRefreshToken(refreshToken)
	if err != nil {
		s.logger.WithError(err).Debug("refresh token rejected")
		return "", time.Time{}, nil, ErrInvalidRefreshToken
	}
	if claims.UserID != row.UserID {
		return "", time.Time{}, nil, ErrInvalidRefreshToken
	}

	// the owner must still exist and be active
	pub, err := s.GetUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", time.Time{}, nil, ErrInvalidRefreshToken
		}
		return "", time.Time{}, nil, err
	}

	access, exp, err := s.jwt.GenerateAccessToken(row.UserID)
	if err != nil {
		return "", time.Time{}, nil, infra("sign access token", err)
	}
	return access, exp, pub, nil
}

// RevokeRefreshToken deletes the row. Absent rows are not an error.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.tokens.Delete(ctx, token); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return infra("delete refresh token", err)
	}
	return nil
}

// ChangePassword replaces the hash and revokes every refresh token of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	v := &ValidationError{}
	if current == "" {
		v.add("currentPassword", "is required")
	}
	checkPassword(v, "newPassword", next)
	if err := v.orNil(); err != nil {
		return err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return infra("find user", err)
	}
	if !s.hasher.Verify(ctx, current, u.PasswordHash) {
		if ctx.Err() != nil {
			return infra("verify password", ctx.Err())
		}
		return ErrCredentialMismatch
	}

	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return infra("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return infra("update password", err)
	}
	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return infra("revoke refresh tokens", err)
	}

	s.logger.WithField("user_id", userID).Info("password changed")
	s.enqueue(ctx, mailer.EmailJob{To: u.Email, Template: mailtpl.PasswordChanged, Data: mailtpl.NewPasswordChangedData(s.appName, u.Name, u.Email, s.now())})
	return nil
}

// GetUserByID returns the active user or ErrUserNotFound.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*entity.PublicUser, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infra("find user", err)
	}
	if !u.Active {
		return nil, ErrUserNotFound
	}
	return u.Public(), nil
}

// VerifyAccessToken checks signature, expiry and kind. No store access.
func (s *AuthService) VerifyAccessToken(token string) (*helpers.Claims, error) {
	return s.jwt.ParseAccessToken(token)
}

func (s *AuthService) indexProfile(ctx context.Context, u *entity.PublicUser) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, u); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
	}
}

// enqueue is best effort: a broken queue never fails the request.
func (s *AuthService) enqueue(ctx context.Context, job mailer.EmailJob) {
	if s.mail == nil {
		return
	}
	if err := s.mail.PublishJSON(ctx, job); err != nil {
		s.logger.WithError(err).WithField("template", job.Template).Warn("enqueue email failed")
	}
}
