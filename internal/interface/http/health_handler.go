package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/pkg/response"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	AppName string
	Checks  map[string]HealthCheck
	Logger  *logrus.Logger
	Timeout time.Duration
}

func NewHealthHandler(appName string, logger *logrus.Logger, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{AppName: appName, Checks: checks, Logger: logger, Timeout: 2 * time.Second}
}

// Root GET /
func (h *HealthHandler) Root(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"name": h.AppName}, "Welcome to the "+h.AppName+" API", nil)
}

// Health GET /health
// Responds 503 when any dependency check fails.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = "down"
			if h.Logger != nil {
				h.Logger.WithError(err).WithField("check", name).Warn("health check failed")
			}
			continue
		}
		results[name] = "up"
	}

	if status != http.StatusOK {
		response.Error[any](c, status, "Server is degraded", results)
		return
	}
	response.Success(c, status, results, "Server is running", nil)
}

// NotFound answers unmatched routes with the standard envelope.
func NotFound(c *gin.Context) {
	response.Error[any](c, http.StatusNotFound, "Route "+c.Request.URL.Path+" not found", nil)
}
