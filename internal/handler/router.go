package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/middleware"
	"go.uber.org/zap"
)

const webhookPath = "/api/purchases/webhook"

type RouterConfig struct {
	CORSAllowOrigins string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	Gatherer         prometheus.Gatherer
}

func NewApp(log *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "ourcourses-backend",
		ErrorHandler: ErrorHandler(log),
	})
}

func RegisterRoutes(app *fiber.App, cfg RouterConfig, auth fiber.Handler, payments *PaymentHandler, progress *ProgressHandler, log *zap.Logger) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		// Webhook deliveries are not rate limited.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == webhookPath
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(cfg.Gatherer)))
	}

	api := app.Group("/api")

	// Stripe webhook (public, raw body). Registered before the auth group
	// so the group middleware never sees it.
	api.Post("/purchases/webhook", payments.HandleStripeWebhook)

	// Protected routes
	purchases := api.Group("/purchases", auth)
	purchases.Post("/checkout", payments.CreateCheckoutSession)
	purchases.Get("/", payments.GetPurchasedCourses)
	purchases.Get("/history", payments.GetPurchaseHistory)
	purchases.Get("/course/:courseId/detail-with-status", payments.GetCourseDetailWithPurchaseStatus)

	progressRoutes := api.Group("/progress", auth)
	progressRoutes.Get("/:courseId", progress.GetProgress)
	progressRoutes.Post("/:courseId/lectures/:lectureId/view", progress.RecordLectureViewed)
	progressRoutes.Post("/:courseId/complete", progress.MarkCourseCompleted)
	progressRoutes.Post("/:courseId/incomplete", progress.MarkCourseIncomplete)
}
