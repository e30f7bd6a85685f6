package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"caisse/internal/account"
	"caisse/internal/fees"
	"caisse/internal/gateway"
	"caisse/internal/handler"
	"caisse/internal/ledger"
	"caisse/internal/limits"
	"caisse/internal/middleware"
	"caisse/internal/notification"
	"caisse/internal/repository/postgres"
	"caisse/internal/scheduler"
	"caisse/internal/transaction"
	"caisse/pkg/cache"
	"caisse/pkg/config"
	"caisse/pkg/logger"
	"caisse/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("caisse")

	log.Info("Starting transaction engine", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis. The engine runs degraded without it: fee configs fall back to
	// the store and rate limiting opens up.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn("Redis unavailable, running degraded", map[string]interface{}{"error": err.Error()})
	} else {
		log.Info("Redis connected", nil)
	}

	// Repositories
	accountRepo := postgres.NewAccountRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	feeConfigRepo := postgres.NewFeeConfigRepository(db)

	// Services
	feeCache := cache.NewFromClient(redisClient)
	feeProvider := fees.NewProvider(feeConfigRepo, feeCache, cfg.Fees.ConfigCacheTTL, log)
	calculator := fees.NewCalculator(cfg.Fees.Defaults(), log)
	tracker := limits.NewTracker()
	ledgerService := ledger.NewService(db, log)
	notifier := notification.NewDefaultService(log)
	extGateway := gateway.NewLogging(log)

	txValidator := transaction.NewValidator(accountRepo, calculator, feeProvider, tracker, cfg.Fees.AmountCeiling, log)
	txExecutor := transaction.NewExecutor(txRepo, ledgerService, extGateway, notifier, log)
	txService := transaction.NewService(txValidator, txExecutor, txRepo, log)
	accountService := account.NewService(accountRepo, cfg.Limits, log)

	// Scheduler: daily counter sweep plus monthly account fees.
	sched := scheduler.New(accountRepo, txService, cfg.Scheduler, cfg.Fees, log)
	sched.Start()
	defer sched.Stop()

	// Handlers
	val := validator.New()
	txHandler := handler.NewTransactionHandler(txService, val, log)
	accountHandler := handler.NewAccountHandler(accountService, val, log)
	systemHandler := handler.NewSystemHandler(db, redisClient, log)

	// Router
	r := mux.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transactions", txHandler.Process).Methods("POST")
	api.HandleFunc("/transactions/{id}", txHandler.Get).Methods("GET")
	api.HandleFunc("/accounts", accountHandler.Open).Methods("POST")
	api.HandleFunc("/accounts/{number}", accountHandler.Get).Methods("GET")
	api.HandleFunc("/accounts/{number}/transactions", txHandler.ListByAccount).Methods("GET")
	api.HandleFunc("/accounts/{number}/history", accountHandler.History).Methods("GET")
	api.HandleFunc("/accounts/{number}/suspend", accountHandler.Suspend).Methods("POST")
	api.HandleFunc("/accounts/{number}/block", accountHandler.Block).Methods("POST")
	api.HandleFunc("/accounts/{number}/reactivate", accountHandler.Reactivate).Methods("POST")

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", map[string]interface{}{"error": err.Error()})
	}
	_ = redisClient.Close()
}
