package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	handlers "github.com/oksasatya/go-user-auth/internal/interface/http"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
)

// UserModule wires user administration under /users. Every route needs a
// valid access token; all but GET /users/:id are admin only, and that one
// allows admins or the user themselves.
type UserModule struct {
	Handler  *handlers.UserHandler
	Identity middleware.IdentityResolver
}

func NewUserModule(h *handlers.UserHandler, identity middleware.IdentityResolver) *UserModule {
	return &UserModule{Handler: h, Identity: identity}
}

func (m *UserModule) Name() string { return "users" }

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	users.Use(
		middleware.Protect(m.Identity),
		limiter(120, time.Minute, middleware.KeyByUserID(), nil),
	)
	admin := middleware.Authorize(entity.RoleAdmin)
	{
		users.GET("", admin, m.Handler.List)
		users.GET("/search", admin, m.Handler.Search)
		users.POST("", admin, m.Handler.Create)
		users.GET("/:id", m.Handler.Get)
		users.PUT("/:id", admin, m.Handler.Update)
		users.DELETE("/:id", admin, m.Handler.Delete)
	}
}
