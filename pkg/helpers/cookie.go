package helpers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

type Manager struct {
	Domain string
	Secure bool
}

func NewCookie(domain string, secure bool) *Manager {
	return &Manager{Domain: domain, Secure: secure}
}

// SetRefresh stores the refresh token in an HttpOnly, SameSite=Strict cookie
// that lives as long as the token itself.
func (m *Manager) SetRefresh(c *gin.Context, refresh string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, refresh, int(entity.RefreshTokenTTL.Seconds()), "/", m.Domain, m.Secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", m.Domain, m.Secure, true)
}

// Refresh returns the refresh token cookie value, or "" when absent.
func (m *Manager) Refresh(c *gin.Context) string {
	v, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return v
}
