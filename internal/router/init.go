package router

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/internal/container"
	handlers "github.com/oksasatya/go-user-auth/internal/interface/http"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
	"github.com/oksasatya/go-user-auth/internal/router/modules"
)

var errNotConfigured = errors.New("container is missing config, stores, jwt or hasher")

type Services struct {
	Auth     *application.AuthService
	Users    *application.UserService
	Verifier *application.EmailVerifier
}

func buildServices() (Services, error) {
	cfg := container.GetConfig()
	users, tokens := container.GetUserRepo(), container.GetTokenRepo()
	if cfg == nil || users == nil || tokens == nil || container.GetJWT() == nil || container.GetHasher() == nil {
		return Services{}, errNotConfigured
	}
	logger := container.GetLogger()
	index := container.GetSearchIndex()

	var opts []application.Option
	if index != nil {
		opts = append(opts, application.WithSearchIndex(index))
	}
	mail := container.GetMailPublisher()
	if mail != nil && cfg.MailSendEnabled {
		opts = append(opts, application.WithMailer(mail))
	} else {
		mail = nil
	}

	return Services{
		Auth:     application.NewAuthService(cfg, users, tokens, container.GetHasher(), container.GetJWT(), logger, opts...),
		Users:    application.NewUserService(users, tokens, container.GetHasher(), index, logger),
		Verifier: application.NewEmailVerifier(users, container.GetRedis(), mail, logger, cfg.AppName, cfg.VerifyEmailURL),
	}, nil
}

// InitModules builds the services from the container and registers every
// feature module. Call it once during startup.
func InitModules(r *Registry) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	cfg := container.GetConfig()
	logger := container.GetLogger()
	metrics := container.GetMetrics()

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, svc.Verifier, metrics, logger, cfg)
	userHandler := handlers.NewUserHandler(svc.Users, logger)

	r.Add(modules.NewAuthModule(authHandler, svc.Auth))
	r.Add(modules.NewUserModule(userHandler, svc.Auth))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(metrics))
	}
	return nil
}

func corsConfig(cfg *config.Config) cors.Config {
	return cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func healthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool := container.GetPGPool(); pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if p, ok := container.GetSearchIndex().(interface{ Ping(context.Context) error }); ok {
		checks["elasticsearch"] = p.Ping
	}
	return checks
}

// NewEngine assembles the gin engine: global middleware, health routes and
// every module under /api.
func NewEngine() (*gin.Engine, error) {
	cfg := container.GetConfig()
	if cfg == nil {
		return nil, errNotConfigured
	}
	logger := container.GetLogger()

	r := gin.New()
	if !cfg.TrustProxyHeaders {
		if err := r.SetTrustedProxies(nil); err != nil {
			return nil, err
		}
	}
	r.Use(
		middleware.RequestIDMiddleware(),
		middleware.RealIP(cfg.TrustProxyHeaders),
		middleware.Recovery(logger),
	)
	if m := container.GetMetrics(); m != nil {
		r.Use(m.Middleware())
	}
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(corsConfig(cfg)))
	}
	r.Use(middleware.ErrorHandler(logger, cfg.IsDevelopment()))
	r.NoRoute(handlers.NotFound)

	health := handlers.NewHealthHandler(cfg.AppName, logger, healthChecks())
	r.GET("/", health.Root)
	r.GET("/health", health.Health)

	reg := NewRegistry(r, logger)
	if err := InitModules(reg); err != nil {
		return nil, err
	}
	reg.RegisterAll()
	logger.WithField("modules", reg.Modules()).Info("routes registered")
	return r, nil
}
