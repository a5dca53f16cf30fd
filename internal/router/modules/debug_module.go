package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
)

// DebugModule exposes expvar and Prometheus metrics. Private-network
// scrapers bypass the per-IP limit.
type DebugModule struct {
	Metrics *middleware.Metrics
}

func NewDebugModule(m *middleware.Metrics) *DebugModule { return &DebugModule{Metrics: m} }

func (m *DebugModule) Name() string { return "debug" }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	rl := limiter(120, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
	if m.Metrics != nil {
		rg.GET("/metrics", rl, gin.WrapH(m.Metrics.Handler()))
	}
}
