package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/application"
	pginfra "github.com/oksasatya/go-user-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	if cfg.SeedAdminPassword == "" {
		log.Fatal("SEED_ADMIN_PASSWORD must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, time.Minute)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if cfg.MigrationsEnabled {
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), logger); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	svc := application.NewUserService(
		pginfra.NewUserRepository(pool),
		pginfra.NewRefreshTokenRepository(pool),
		helpers.NewPasswordHasher(cfg.BcryptCost, 1),
		nil,
		logger,
	)
	u, created, err := svc.EnsureAdmin(ctx, cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	if err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	logger.WithField("user_id", u.ID).WithField("email", u.Email).WithField("created", created).Info("admin account ready")
}
