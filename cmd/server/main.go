package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"griff_shop/internal/audit"
	"griff_shop/internal/cart"
	"griff_shop/internal/config"
	"griff_shop/internal/inventory"
	"griff_shop/internal/logging"
	"griff_shop/internal/middleware"
	"griff_shop/internal/order"
	"griff_shop/internal/payment"
	"griff_shop/internal/queue"
	"griff_shop/internal/router"
	"griff_shop/internal/storage"
	rediskey "griff_shop/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	// 1. 数据库：连接 + 自动建表
	dsn := cfg.DBPath
	if cfg.DBDriver == "mysql" {
		dsn = cfg.MySQLDSN
	}
	db, err := storage.Open(storage.Options{
		Driver:      cfg.DBDriver,
		DSN:         dsn,
		MaxOpen:     cfg.DBMaxOpen,
		MaxIdle:     cfg.DBMaxIdle,
		MaxLifetime: cfg.DBLifetime,
		LogSQL:      cfg.LogLevel == "debug",
	})
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	var workers sync.WaitGroup

	// 2. Redis：限流、webhook 去重、订单事件 outbox；不可用时降级
	var rdb *rd.Client
	if cfg.RedisEnabled {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			logger.Info("Redis connected successfully", zap.String("addr", cfg.RedisAddr))
		}
	}

	// 3. 订单事件：API 提交后写 Redis Stream，Relay 转发到 Kafka
	var events order.EventPublisher
	if cfg.EventsEnabled {
		events = queue.NewStreamPublisher(rdb, cfg.OrderEventStream)

		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := queue.NewRelay(rdb, producer, logger.Named("relay"),
			cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
		workers.Add(1)
		go func() {
			defer workers.Done()
			relay.Run(ctx)
		}()
		logger.Info("Order event relay started",
			zap.String("stream", cfg.OrderEventStream),
			zap.String("topic", cfg.KafkaTopic))
	}

	// 4. 审计：消费 Kafka 订单事件写入 MongoDB，管理端可按订单查询
	var trail router.AuditTrail
	if cfg.AuditEnabled {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		repo, err := audit.NewMongoRepository(connectCtx, audit.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = repo.Close(closeCtx)
		}()
		trail = repo

		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, repo, logger.Named("audit"))
		defer consumer.Close()
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Run(ctx)
		}()
		logger.Info("Order audit consumer started", zap.String("group", cfg.KafkaGroupID))
	}

	// 5. 业务服务
	ledger := inventory.NewLedger(logger.Named("inventory"))
	orders := order.NewService(order.Deps{DB: db, Ledger: ledger, Events: events, Logger: logger.Named("order")})

	var seen payment.SeenMarker
	if rdb != nil {
		seen = rediskey.NewWebhookMarks(rdb, cfg.WebhookSeenTTL)
	}
	if cfg.GatewaySecretKey == "" {
		logger.Warn("TOSS_SECRET_KEY is empty, payment confirmation will fail")
	}
	reconciler := payment.NewReconciler(payment.Deps{
		DB:      db,
		Ledger:  ledger,
		Gateway: payment.NewTossClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout),
		Seen:    seen,
		Events:  events,
		Logger:  logger.Named("payment"),
	})

	// 6. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Named("http")))
	router.Setup(r, router.Deps{
		DB:         db,
		Redis:      rdb,
		Orders:     orders,
		Admin:      order.NewAdminService(orders),
		Carts:      cart.NewService(db, logger.Named("cart")),
		Reconciler: reconciler,
		Audit:      trail,
		Config:     cfg,
		Logger:     logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("address", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	stop()
	workers.Wait()
	logger.Info("Service stopped")
}
