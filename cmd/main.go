package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tank-monitor-service/internal/alerts"
	"tank-monitor-service/internal/api"
	"tank-monitor-service/internal/auth"
	"tank-monitor-service/internal/config"
	"tank-monitor-service/internal/db"
	"tank-monitor-service/internal/kafka"
	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/notification"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Notification dispatch
	notifier := notification.New(dbConn, logger, cfg)
	var wg sync.WaitGroup
	notifier.Start(&wg)

	// Alert lifecycle
	evaluator := alerts.Evaluator{Threshold: cfg.Alert.Threshold}
	alertSvc := alerts.New(dbConn, evaluator, notifier, logger)

	// Auth
	authMgr := auth.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka readings consumer (optional, broker may be absent in dev)
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, dbConn, alertSvc, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Shutdown on signal
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Infof("Shutting down")
		cancel()
		notifier.Stop()
	}()

	// Start API server
	handler := api.NewHandler(dbConn, alertSvc, notifier, authMgr, logger)
	router := api.NewRouter(handler, authMgr, logger, cfg)
	logger.Infof("Starting API server on %s", cfg.API.Port)
	if err := router.Run(cfg.API.Port); err != nil {
		logger.Errorf("API server failed: %v", err)
	}
}
