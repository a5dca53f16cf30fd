package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/go-user-auth/internal/interface/http"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
)

// AuthModule wires session endpoints under /auth.
// Public, IP limited: register, login, refresh, verify/confirm. Logout is open.
// Protected: profile, change-password, verify/init (user limited).
type AuthModule struct {
	Handler  *handlers.AuthHandler
	Identity middleware.IdentityResolver
}

func NewAuthModule(h *handlers.AuthHandler, identity middleware.IdentityResolver) *AuthModule {
	return &AuthModule{Handler: h, Identity: identity}
}

func (m *AuthModule) Name() string { return "auth" }

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	byIP := middleware.KeyByIPAndPath()
	registerLimiter := limiter(10, time.Minute, byIP, nil)
	loginLimiter := limiter(10, time.Minute, byIP, nil)
	refreshLimiter := limiter(60, time.Minute, byIP, nil)
	verifyConfirmLimiter := limiter(30, time.Minute, byIP, nil)

	rg.POST("/auth/register", registerLimiter, m.Handler.Register)
	rg.POST("/auth/login", loginLimiter, m.Handler.Login)
	rg.POST("/auth/refresh", refreshLimiter, m.Handler.Refresh)
	rg.POST("/auth/logout", m.Handler.Logout)
	rg.POST("/auth/verify/confirm", verifyConfirmLimiter, m.Handler.VerifyConfirm)

	auth := rg.Group("/auth")
	auth.Use(middleware.Protect(m.Identity))
	{
		auth.GET("/profile", m.Handler.GetProfile)
		auth.PUT("/profile", m.Handler.UpdateProfile)
		auth.PUT("/change-password", m.Handler.ChangePassword)
		auth.POST("/verify/init", limiter(5, time.Minute, middleware.KeyByUserID(), nil), m.Handler.VerifyInit)
	}
}
