package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/waste3d/courseplatform-api/config"
	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/database"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/repository"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"
	"github.com/waste3d/courseplatform-api/internal/middleware"
	grpc_server "github.com/waste3d/courseplatform-api/internal/transport/grpc"
	handlers "github.com/waste3d/courseplatform-api/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the internal gRPC content access service",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
				if err := database.Migrate(rt.db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
	cmd.Flags().Bool("migrate", false, "apply migrations before starting")
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.log

	store, err := counterStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	governor := ratelimit.NewGovernor(store, nil)

	users := repository.NewUserRepository(rt.db)
	courses := repository.NewCourseRepository(rt.db)
	purchases := repository.NewPurchaseRepository(rt.db)
	progress := repository.NewProgressRepository(rt.db)
	settings := repository.NewSettingRepository(rt.db)

	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL, cfg.ContentTokenTTL)
	registry := paymentRegistry(cfg, log)
	log.Info("payment providers", zap.Any("enabled", registry.Names()))

	authUC := usecase.NewAuthUseCase(users, settings, security.NewPasswordHasher(), tokens, log)
	ledger := usecase.NewPurchaseUseCase(courses, purchases, registry, log)
	reconciler := usecase.NewReconcileUseCase(ledger, registry, cfg.ProviderTimeout, log)
	accessUC := usecase.NewAccessUseCase(courses, purchases, tokens, governor, cfg.ContentRateLimitMax, cfg.ContentRateLimitWindow, log)
	progressUC := usecase.NewProgressUseCase(courses, purchases, progress)
	adminUC := usecase.NewAdminUseCase(users, settings, ledger, reconciler, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Handlers{
		Auth:     handlers.NewAuthHandler(authUC, !cfg.IsDevelopment(), log),
		Purchase: handlers.NewPurchaseHandler(ledger, reconciler, log),
		Lesson:   handlers.NewLessonHandler(accessUC, progressUC, governor.Now, log),
		Admin:    handlers.NewAdminHandler(adminUC, log),
	}, authUC, middleware.NewRateLimiter(governor, log), handlers.RouterConfig{
		AllowedOrigins: cfg.Origins(),
		LoginLimit:     cfg.LoginRateLimitMax,
		LoginWindow:    cfg.LoginRateLimitWindow,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCPort, err)
	}
	grpcServer := grpc_server.NewServer(grpc_server.NewAccessServer(accessUC), log)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server listening", zap.String("addr", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	return runErr
}

// counterStore picks Redis when REDIS_ADDR is set so limits hold across replicas.
func counterStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ratelimit.CounterStore, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, rate limit counters are per process")
		return ratelimit.NewMemoryStore(), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return ratelimit.NewRedisStore(rdb), nil
}

func paymentRegistry(cfg config.Config, log *zap.Logger) *payment.Registry {
	var adapters []payment.Adapter
	if cfg.StripeSecretKey != "" {
		adapters = append(adapters, payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			APIURL:        cfg.StripeAPIURL,
			Timeout:       cfg.ProviderTimeout,
			Logger:        log,
		}))
	}
	if cfg.PayPalClientID != "" {
		appURL := strings.TrimRight(cfg.AppURL, "/")
		adapters = append(adapters, payment.NewPayPal(payment.PayPalConfig{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			Mode:         cfg.PayPalMode,
			WebhookID:    cfg.PayPalWebhookID,
			ReturnURL:    appURL + "/checkout/success",
			CancelURL:    appURL + "/checkout/cancel",
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	if cfg.ManualPaymentsEnabled {
		adapters = append(adapters, payment.NewManual())
	}
	return payment.NewRegistry(adapters...)
}
