// Command reconcile re-applies enrollment entitlements for completed purchases
// that are missing them. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sefazor/ourcourses-backend/internal/config"
	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"github.com/sefazor/ourcourses-backend/internal/service"
	"github.com/sefazor/ourcourses-backend/pkg/database"
	"github.com/sefazor/ourcourses-backend/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit for the backfill")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatalf("reconcile needs STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.NewDatabase(cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("database unavailable", zap.Error(err))
	}

	payments := service.NewPaymentService(
		nil,
		repository.NewUserRepository(db),
		repository.NewCourseRepository(db),
		repository.NewPurchaseRepository(db),
		repository.NewEntitlementStore(db),
		nil,
		metrics.NopCollector{},
		zl,
		service.Timeouts{Gateway: cfg.GatewayTimeout, Store: cfg.StoreTimeout},
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fixed, err := payments.ReconcileEntitlements(ctx)
	if err != nil {
		zl.Fatal("backfill stopped", zap.Int("fixed", fixed), zap.Error(err))
	}
	zl.Info("backfill finished", zap.Int("fixed", fixed))
}
