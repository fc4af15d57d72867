// @title Storefront API
// @version 1.0
// @BasePath /api
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v83"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/foretdhiver1228/storefront/docs"
	"github.com/foretdhiver1228/storefront/internal/auth"
	"github.com/foretdhiver1228/storefront/internal/cart"
	"github.com/foretdhiver1228/storefront/internal/checkout"
	"github.com/foretdhiver1228/storefront/internal/config"
	"github.com/foretdhiver1228/storefront/internal/db"
	"github.com/foretdhiver1228/storefront/internal/events"
	"github.com/foretdhiver1228/storefront/internal/health"
	"github.com/foretdhiver1228/storefront/internal/httpx"
	"github.com/foretdhiver1228/storefront/internal/lock"
	"github.com/foretdhiver1228/storefront/internal/order"
	"github.com/foretdhiver1228/storefront/internal/payment"
	"github.com/foretdhiver1228/storefront/internal/product"
	"github.com/foretdhiver1228/storefront/internal/user"
)

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

type publisher interface {
	events.Publisher
	Close() error
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

func newVerifier(cfg config.Config) payment.Verifier {
	if cfg.PaymentGateway == "stripe" {
		stripe.Key = cfg.StripeSecretKey
		return payment.NewStripeVerifier(cfg.StripeAmountScale)
	}
	return payment.NewTossVerifier(cfg.TossBaseURL, cfg.TossSecretKey)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("Service configuration",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("payment_gateway", cfg.PaymentGateway),
		zap.Strings("kafka_brokers", cfg.Brokers()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("Failed to migrate schema", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	defer rdb.Close()

	var pub publisher = events.Nop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		pub = events.NewKafkaPublisher(brokers, cfg.KafkaOrdersTopic, cfg.KafkaCleanupTopic, logger)
	}
	defer pub.Close()

	products := product.NewPGRepo(pool)
	carts := cart.NewPGRepo(pool)
	orders := order.NewPGRepo(pool)
	users := user.NewService(user.NewPGRepo(pool))
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL)

	opts := checkout.Options{
		StepTimeout:   cfg.StepTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
	}
	// The lock must outlive the slowest possible run.
	lockTTL := max(cfg.LockTTL, opts.Budget())
	if lockTTL != cfg.LockTTL {
		logger.Warn("Raising checkout lock TTL to cover the retry budget",
			zap.Duration("configured", cfg.LockTTL),
			zap.Duration("ttl", lockTTL))
	}
	pipeline := checkout.NewPipeline(
		newVerifier(cfg),
		carts,
		orders,
		carts,
		lock.NewRedisLocker(rdb, lockTTL, cfg.LockWait),
		pub,
		logger.Named("checkout"),
		opts,
	)

	router := gin.New()
	router.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	(&api{
		products: products,
		carts:    carts,
		orders:   orders,
		users:    users,
		sessions: sessions,
		checkout: pipeline,
		cookie:   cookieConfig{name: cfg.SessionCookie, secure: cfg.CookieSecure},
	}).routes(router)

	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pool,
		"redis":    redisPinger{rdb},
	}, 15*time.Second, logger.Named("health"))
	grpcServer := grpc.NewServer()
	checker.Register(grpcServer)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		checker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Error("gRPC listen failed", zap.Error(err))
			stop()
			return
		}
		logger.Info("Starting gRPC health server", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	wg.Wait()
	logger.Info("Stopped")
}
