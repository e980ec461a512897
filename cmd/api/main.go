package main

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/logger"
	"github.com/safar/go-storefront/internal/session"
	"github.com/safar/go-storefront/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	slogger := logger.New(logger.Options{
		Service: "storefront",
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
	})

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	sessions := session.NewRedisStore(redisClient, cfg.Redis.SessionTTL)

	var sender checkout.Sender
	if cfg.SMTP.Enabled {
		sender = checkout.NewSMTPSender(cfg.SMTP)
	} else {
		sender = &checkout.LogSender{Logger: slogger}
	}

	orders := &store.Orders{DB: db}
	orchestrator := checkout.NewOrchestrator(
		orders,
		checkout.NewStripeGateway(cfg.Stripe.APIKey, cfg.Stripe.CallTimeout),
		sender,
		checkout.Config{
			SuccessURL:     cfg.Server.BaseURL + cfg.Stripe.SuccessPath,
			CancelURL:      cfg.Server.BaseURL + cfg.Stripe.CancelPath,
			Currency:       cfg.Stripe.Currency,
			GatewayTimeout: cfg.Stripe.CallTimeout,
		},
		slogger,
	)

	app := &application{
		db:       db,
		sessions: sessions,
		catalog:  &store.Catalog{DB: db},
		orders:   orders,
		checkout: orchestrator,
		logger:   slogger,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.routes(promhttp.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slogger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
