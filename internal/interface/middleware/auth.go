package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
)

const (
	CtxUserIDKey   = "userID"
	CtxIdentityKey = "identity"
)

// IdentityResolver turns an access token into a live user.
// *application.AuthService implements it.
type IdentityResolver interface {
	VerifyAccessToken(token string) (*helpers.Claims, error)
	GetUserByID(ctx context.Context, id string) (*entity.PublicUser, error)
}

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(reason string) error {
	return fmt.Errorf("%w, %s", application.ErrUnauthorized, reason)
}

// resolve returns the identity behind the request's bearer token. The user
// row is read on every call so deactivation takes effect immediately.
func resolve(c *gin.Context, auth IdentityResolver) (*entity.PublicUser, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, unauthorized("no token provided")
	}
	claims, err := auth.VerifyAccessToken(token)
	if err != nil {
		switch {
		case errors.Is(err, helpers.ErrTokenExpired):
			return nil, unauthorized("token expired")
		default:
			return nil, unauthorized("invalid token")
		}
	}
	u, err := auth.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, application.ErrUserNotFound) {
			return nil, unauthorized("user not found")
		}
		return nil, err
	}
	return u, nil
}

func attach(c *gin.Context, u *entity.PublicUser) {
	c.Set(CtxIdentityKey, u)
	c.Set(CtxUserIDKey, u.ID)
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Protect requires a valid bearer access token belonging to an active user.
func Protect(auth IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := resolve(c, auth)
		if err != nil {
			fail(c, err)
			return
		}
		attach(c, u)
		c.Next()
	}
}

// Authorize admits only identities whose role is in roles. It must run after Protect.
func Authorize(roles ...entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			fail(c, application.ErrUnauthorized)
			return
		}
		if !u.Role.In(roles...) {
			fail(c, fmt.Errorf("%w: user role '%s' is not authorized to access this route", application.ErrForbidden, u.Role))
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the identity when one resolves and otherwise
// continues anonymously.
func OptionalAuth(auth IdentityResolver, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) != "" {
			u, err := resolve(c, auth)
			if err == nil {
				attach(c, u)
			} else if logger != nil {
				logger.WithError(err).Debug("optional auth ignored credentials")
			}
		}
		c.Next()
	}
}

// CurrentUser returns the identity set by Protect or OptionalAuth.
func CurrentUser(c *gin.Context) (*entity.PublicUser, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*entity.PublicUser)
	return u, ok && u != nil
}
