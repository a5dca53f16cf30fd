package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/go-user-auth/pkg/mailer/templates"
)

// VerifyTokenTTL bounds how long an emailed link stays usable.
const VerifyTokenTTL = 24 * time.Hour

var ErrVerificationUnavailable = errors.New("email verification unavailable")

func keyVerifyToken(t string) string { return "email:verify:token:" + t }

// EmailVerifier issues one-time email confirmation tokens kept in Redis.
type EmailVerifier struct {
	users     repo.UserRepository
	rdb       *redis.Client
	mail      Publisher
	logger    *logrus.Logger
	appName   string
	verifyURL string
	now       func() time.Time
}

func NewEmailVerifier(users repo.UserRepository, rdb *redis.Client, mail Publisher, logger *logrus.Logger, appName, verifyURL string) *EmailVerifier {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &EmailVerifier{users: users, rdb: rdb, mail: mail, logger: logger, appName: appName, verifyURL: verifyURL, now: time.Now}
}

type VerifyInitResult struct {
	AlreadyVerified bool
	Link            string
	ExpiresAt       time.Time
}

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (v *EmailVerifier) link(tok string) string {
	sep := "?"
	if strings.Contains(v.verifyURL, "?") {
		sep = "&"
	}
	return v.verifyURL + sep + "token=" + url.QueryEscape(tok)
}

// Init stores a fresh token for the user and enqueues the email. It is a
// no-op for users already verified.
func (v *EmailVerifier) Init(ctx context.Context, userID string) (VerifyInitResult, error) {
	if v.rdb == nil {
		return VerifyInitResult{}, ErrVerificationUnavailable
	}
	u, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyInitResult{}, ErrUserNotFound
		}
		return VerifyInitResult{}, infra("find user", err)
	}
	if !u.Active {
		return VerifyInitResult{}, ErrUserNotFound
	}
	if u.EmailVerified {
		return VerifyInitResult{AlreadyVerified: true}, nil
	}

	tok, err := genToken(32)
	if err != nil {
		return VerifyInitResult{}, infra("generate token", err)
	}
	if err := v.rdb.Set(ctx, keyVerifyToken(tok), u.ID, VerifyTokenTTL).Err(); err != nil {
		return VerifyInitResult{}, infra("store verify token", err)
	}

	res := VerifyInitResult{Link: v.link(tok), ExpiresAt: v.now().Add(VerifyTokenTTL)}
	v.enqueue(ctx, u, res)
	return res, nil
}

func (v *EmailVerifier) enqueue(ctx context.Context, u *entity.User, res VerifyInitResult) {
	if v.mail == nil {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.VerifyEmail,
		Data:     mailtpl.NewVerifyEmailData(v.appName, u.Name, u.Email, res.Link, res.ExpiresAt),
	}
	if err := v.mail.PublishJSON(ctx, job); err != nil {
		v.logger.WithError(err).WithField("user_id", u.ID).Warn("enqueue verify email failed")
	}
}

// Confirm consumes token and marks its user verified. Tokens work once.
func (v *EmailVerifier) Confirm(ctx context.Context, token string) error {
	if v.rdb == nil {
		return ErrVerificationUnavailable
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("token", "is required")
	}
	uid, err := v.rdb.GetDel(ctx, keyVerifyToken(token)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && uid == "") {
		return invalid("token", "is invalid or expired")
	}
	if err != nil {
		return infra("read verify token", err)
	}
	if err := v.users.SetVerified(ctx, uid); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("token", "is invalid or expired")
		}
		return infra("mark verified", err)
	}
	v.logger.WithField("user_id", uid).Info("email verified")
	return nil
}
