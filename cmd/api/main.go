package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/instavisa/instavisa/internal/application"
	appStore "github.com/instavisa/instavisa/internal/application/store"
	"github.com/instavisa/instavisa/internal/artifact"
	"github.com/instavisa/instavisa/internal/config"
	"github.com/instavisa/instavisa/internal/database"
	ivHttp "github.com/instavisa/instavisa/internal/http"
	adminHandler "github.com/instavisa/instavisa/internal/http/admin"
	applicantHandler "github.com/instavisa/instavisa/internal/http/applicant"
	"github.com/instavisa/instavisa/internal/http/authn"
	webhookHandler "github.com/instavisa/instavisa/internal/http/webhook"
	"github.com/instavisa/instavisa/internal/notify"
	"github.com/instavisa/instavisa/internal/payment"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	artifacts, err := artifact.New(context.Background(),
		cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
		cfg.Storage.Bucket, cfg.Storage.PublicURL, cfg.Storage.UseSSL)
	if err != nil {
		slog.Error("failed to connect to object storage", "error", err)
		os.Exit(1)
	}

	sessions := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var (
		gateway = payment.NewGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout)
		mailer  = notify.NewEmailSink(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
		events  = application.NewHub()
		engine  = application.NewService(appStore.New(db), gateway, mailer, events)
	)

	var (
		auth       = authn.New(cfg.Auth.JWTSecret, sessions)
		applicantH = applicantHandler.NewHandler(engine, artifacts)
		adminH     = adminHandler.NewHandler(engine, events)
		webhookH   = webhookHandler.NewHandler(engine)
	)

	router := ivHttp.New(auth, applicantH, adminH, webhookH)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
