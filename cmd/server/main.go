// Package main is the entry point for the tindahan API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tindahan/internal/core/types"
	"tindahan/internal/domain/auth"
	"tindahan/internal/domain/clearance"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/domain/remit"
	"tindahan/internal/domain/run"
	"tindahan/internal/infrastructure/config"
	v1 "tindahan/internal/infrastructure/http/v1"
	"tindahan/internal/infrastructure/storage/postgres"
	"tindahan/pkg/logger"
	"tindahan/pkg/numerator"
)

func main() {
	cfg, err := config.Load(os.Getenv("TINDAHAN_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	log.Info("starting tindahan server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// The numerator resolves its querier per call so numbers allocated
	// inside a posting transaction stay inside it.
	numbers := numerator.New(numerator.QuerierFunc(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	}))

	// --- Repositories ---
	productRepo := postgres.NewProductRepo(txManager)
	customerRepo := postgres.NewCustomerRepo(txManager)
	runRepo := postgres.NewRunRepo(txManager)
	orderRepo := postgres.NewOrderRepo(txManager)
	stockRepo := postgres.NewStockRepo(txManager)
	clearanceRepo := postgres.NewClearanceRepo(txManager)
	chargeRepo := postgres.NewChargeRepo(txManager)
	authRepo := postgres.NewAuthRepo(txManager)

	auditRecorder, err := postgres.NewAuditRecorder(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit recorder", "error", err)
	}

	// --- Money policy ---
	policy, inferEpsilon, err := moneyPolicy(cfg.Money)
	if err != nil {
		log.Fatalw("invalid money configuration", "error", err)
	}

	pricingEngine, err := pricing.NewEngine(policy)
	if err != nil {
		log.Fatalw("failed to build pricing engine", "error", err)
	}
	pricingEngine.WithInferEpsilon(inferEpsilon)

	// --- Services ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.AccessTokenTTL > 0 {
		jwtConfig.AccessTokenTTL = cfg.JWT.AccessTokenTTL
	}
	jwtService := auth.NewJWTService(jwtConfig)

	authService := auth.NewService(authRepo, authRepo, txManager, jwtService, auth.DefaultServiceConfig())

	clearanceService := clearance.NewService(clearanceRepo, clearanceRepo, txManager, auditRecorder, policy)

	runService := run.NewService(
		runRepo,
		productRepo,
		orderRepo,
		stockRepo,
		numbers,
		txManager,
		clearanceService,
		policy,
	)

	remitService := remit.NewService(
		runRepo,
		orderRepo,
		productRepo,
		stockRepo,
		clearanceService,
		clearanceRepo,
		chargeRepo,
		txManager,
		auditRecorder,
		pricingEngine,
		policy,
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		Pool:             pool,
		JWTValidator:     jwtService,
		AuthService:      authService,
		RunService:       runService,
		ClearanceService: clearanceService,
		RemitService:     remitService,
		PricingEngine:    pricingEngine,
		ProductRepo:      productRepo,
		CustomerRepo:     customerRepo,
		ChargeRepo:       chargeRepo,
		AuditRecorder:    auditRecorder,
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func moneyPolicy(cfg config.MoneyConfig) (types.MoneyPolicy, types.Money, error) {
	epsilon, err := types.NewMoneyFromString(cfg.Epsilon)
	if err != nil {
		return types.MoneyPolicy{}, types.ZeroMoney(), fmt.Errorf("money.epsilon: %w", err)
	}
	inferEpsilon, err := types.NewMoneyFromString(cfg.InferEpsilon)
	if err != nil {
		return types.MoneyPolicy{}, types.ZeroMoney(), fmt.Errorf("money.infer_epsilon: %w", err)
	}
	policy := types.DefaultMoneyPolicy()
	if cfg.Scale > 0 {
		policy.Scale = cfg.Scale
	}
	policy.Epsilon = epsilon
	return policy, inferEpsilon, nil
}
