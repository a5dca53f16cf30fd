package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/pkg/response"
	"github.com/oksasatya/go-user-auth/pkg/validation"
)

// ErrorHandler renders the last error pushed with c.Error when the handler
// chain wrote nothing. Unknown errors become an opaque 500; the cause is
// logged, and echoed to the client only when showDetail is set.
func ErrorHandler(logger *logrus.Logger, showDetail bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, message, detail := classify(err)

		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"request_id": c.GetString("request_id"),
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
			}).Error("request failed")
			if showDetail {
				detail = err.Error()
			}
		}
		response.Abort(c, status, message, detail)
	}
}

func classify(err error) (int, string, interface{}) {
	var ve *application.ValidationError
	var be bindError
	switch {
	case errors.As(err, &be):
		return http.StatusBadRequest, "invalid payload", validation.ToDetails(be.err)
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation failed", ve.Fields
	case errors.Is(err, application.ErrDuplicateIdentity):
		return http.StatusConflict, application.ErrDuplicateIdentity.Error(), nil
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, application.ErrInvalidCredentials.Error(), nil
	case errors.Is(err, application.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, application.ErrInvalidRefreshToken.Error(), nil
	case errors.Is(err, application.ErrCredentialMismatch):
		return http.StatusBadRequest, application.ErrCredentialMismatch.Error(), nil
	case errors.Is(err, application.ErrUserNotFound):
		return http.StatusNotFound, application.ErrUserNotFound.Error(), nil
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error(), nil
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, err.Error(), nil
	case errors.Is(err, application.ErrVerificationUnavailable):
		return http.StatusServiceUnavailable, application.ErrVerificationUnavailable.Error(), nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}

// bindError marks a request body that failed gin binding.
type bindError struct{ err error }

func (e bindError) Error() string { return fmt.Sprintf("bind: %v", e.err) }
func (e bindError) Unwrap() error { return e.err }

// BindError wraps a ShouldBind* failure so ErrorHandler renders field details.
func BindError(err error) error { return bindError{err: err} }

// Recovery turns panics into the standard 500 envelope.
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.WithField("panic", rec).WithField("request_id", c.GetString("request_id")).Error("panic recovered")
		response.Abort(c, http.StatusInternalServerError, "internal server error", nil)
	})
}
