package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sefazor/ourcourses-backend/internal/config"
	"github.com/sefazor/ourcourses-backend/internal/handler"
	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/middleware"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"github.com/sefazor/ourcourses-backend/internal/repository/memory"
	"github.com/sefazor/ourcourses-backend/internal/service"
	"github.com/sefazor/ourcourses-backend/pkg/database"
	"github.com/sefazor/ourcourses-backend/pkg/email"
	"github.com/sefazor/ourcourses-backend/pkg/jwt"
	"github.com/sefazor/ourcourses-backend/pkg/logger"
	"github.com/sefazor/ourcourses-backend/pkg/payment"
	"github.com/sefazor/ourcourses-backend/pkg/utils"
)

type stores struct {
	users        repository.UserRepository
	courses      repository.CourseRepository
	purchases    repository.PurchaseRepository
	entitlements repository.EntitlementStore
	progress     repository.ProgressRepository
	close        func() error
}

func main() {
	// .env is optional outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	st, err := openStores(cfg, zl)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.SeedDemoData {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		err := repository.SeedDemoData(ctx, st.users, st.courses)
		cancel()
		if err != nil {
			return err
		}
		zl.Info("demo data ready")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	stripeService := payment.NewStripeService(payment.Config{
		SecretKey:        cfg.Stripe.SecretKey,
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		Currency:         cfg.Stripe.Currency,
		AllowedCountries: cfg.Stripe.AllowedCountries,
		SuccessURL:       cfg.Stripe.SuccessURL,
		CancelURL:        cfg.Stripe.CancelURL,
		Timeout:          cfg.GatewayTimeout,
	}, zl)

	var notifier service.EnrollmentNotifier
	if cfg.EmailEnabled() {
		notifier = email.NewEmailService(email.Config{
			APIKey:      cfg.Email.ResendAPIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			CourseURL:   cfg.Stripe.SuccessURL,
			Timeout:     cfg.Email.Timeout,
		}, zl)
	} else {
		zl.Info("enrollment emails disabled, RESEND_API_KEY or EMAIL_FROM_ADDRESS not set")
	}

	timeouts := service.Timeouts{Gateway: cfg.GatewayTimeout, Store: cfg.StoreTimeout}

	// Services
	paymentService := service.NewPaymentService(
		stripeService,
		st.users,
		st.courses,
		st.purchases,
		st.entitlements,
		notifier,
		collector,
		zl,
		timeouts,
	)
	courseService := service.NewCourseService(st.users, st.courses, st.purchases, zl, timeouts)
	progressService := service.NewProgressService(st.courses, st.progress, collector, zl, timeouts)

	validator := utils.NewValidator()

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentService, courseService, validator, zl)
	progressHandler := handler.NewProgressHandler(progressService, zl)

	app := handler.NewApp(zl)
	handler.RegisterRoutes(app, handler.RouterConfig{
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RateLimitMax:     cfg.RateLimitMax,
		RateLimitWindow:  cfg.RateLimitWindow,
		Gatherer:         reg,
	},
		middleware.AuthMiddleware(jwt.NewManager(cfg.JWTSecret), zl),
		paymentHandler,
		progressHandler,
		zl,
	)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Email.Timeout)
	defer cancel()
	if err := paymentService.WaitForNotifications(ctx); err != nil {
		zl.Warn("enrollment emails still in flight at exit", zap.Error(err))
	}
	return nil
}

func openStores(cfg *config.Config, zl *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		zl.Warn("using in-memory store, data is lost on restart")
		mem := memory.NewStore()
		return &stores{
			users:        mem.Users(),
			courses:      mem.Courses(),
			purchases:    mem.Purchases(),
			entitlements: mem.Entitlements(),
			progress:     mem.Progress(),
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.NewDatabase(cfg.DatabaseURL, zl)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	return &stores{
		users:        repository.NewUserRepository(db),
		courses:      repository.NewCourseRepository(db),
		purchases:    repository.NewPurchaseRepository(db),
		entitlements: repository.NewEntitlementStore(db),
		progress:     repository.NewProgressRepository(db),
		close:        sqlDB.Close,
	}, nil
}
