package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
)

// app-level container to share constructed components across packages.
// cmd/main.go fills it once at startup; the router wires modules from it.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager
	hasher     *helpers.PasswordHasher

	userRepo    repository.UserRepository
	tokenRepo   repository.RefreshTokenRepository
	searchIndex repository.UserSearchIndex

	mailPub application.Publisher
	metrics *middleware.Metrics
)

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config  { return cfg }
func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger {
	if logger == nil {
		return helpers.NewNopLogger()
	}
	return logger
}
func SetPGPool(p *pgxpool.Pool)                { pgPool = p }
func GetPGPool() *pgxpool.Pool                 { return pgPool }
func SetRedis(r *redis.Client)                 { redisClient = r }
func GetRedis() *redis.Client                  { return redisClient }
func SetES(c *elasticsearch.Client)            { esClient = c }
func GetES() *elasticsearch.Client             { return esClient }
func SetJWT(m *helpers.JWTManager)             { jwtManager = m }
func GetJWT() *helpers.JWTManager              { return jwtManager }
func SetHasher(h *helpers.PasswordHasher)      { hasher = h }
func GetHasher() *helpers.PasswordHasher       { return hasher }
func SetMetrics(m *middleware.Metrics)         { metrics = m }
func GetMetrics() *middleware.Metrics          { return metrics }
func SetMailPublisher(p application.Publisher) { mailPub = p }
func GetMailPublisher() application.Publisher  { return mailPub }

// SetStores installs the Credential Store implementations.
func SetStores(users repository.UserRepository, tokens repository.RefreshTokenRepository) {
	userRepo, tokenRepo = users, tokens
}
func GetUserRepo() repository.UserRepository          { return userRepo }
func GetTokenRepo() repository.RefreshTokenRepository { return tokenRepo }

// SetSearchIndex installs the optional profile index; nil disables it.
func SetSearchIndex(idx repository.UserSearchIndex) { searchIndex = idx }
func GetSearchIndex() repository.UserSearchIndex    { return searchIndex }

// Reset clears every singleton. Tests use it between engines.
func Reset() {
	cfg, logger, pgPool, redisClient, esClient = nil, nil, nil, nil, nil
	jwtManager, hasher = nil, nil
	userRepo, tokenRepo, searchIndex = nil, nil, nil
	mailPub, metrics = nil, nil
}
