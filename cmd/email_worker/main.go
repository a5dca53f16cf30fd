package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/infrastructure/rabbitmq"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/mailer"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-email-worker", cfg.Env)

	if !cfg.MailSendEnabled {
		logger.Info("MAIL_SEND_ENABLED=false; email worker disabled")
		return
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQEmailQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	mg, err := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender, cfg.MailgunAPIBase)
	if err != nil {
		log.Fatalf("mailgun: %v", err)
	}

	sub, err := rabbitmq.Subscribe(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue, 16)
	if err != nil {
		log.Fatalf("amqp subscribe: %v", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("queue", cfg.RabbitMQEmailQueue).Info("email worker listening")
	err = rabbitmq.NewEmailConsumer(mg, logger).Run(ctx, sub.Deliveries)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("email worker stopped")
		return
	}
	logger.Info("email worker exited properly")
}
