package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/service"
	"github.com/sefazor/ourcourses-backend/pkg/utils"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
	courseService  *service.CourseService
	validator      *utils.Validator
	logger         *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, courseService *service.CourseService, validator *utils.Validator, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		courseService:  courseService,
		validator:      validator,
		logger:         log.Named("payment_handler"),
	}
}

func (h *PaymentHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	var req models.CreateCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, models.NewValidationError("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return respondError(c, h.logger, models.NewValidationError("course_id is required"))
	}

	session, err := h.paymentService.CreateCheckoutSession(c.UserContext(), userID, req.CourseID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"url":     session.URL,
		"data":    session,
	})
}

// HandleStripeWebhook passes the raw body through untouched; the signature
// covers the exact bytes.
func (h *PaymentHandler) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	signatureHeader := c.Get("Stripe-Signature")

	err := h.paymentService.HandleGatewayEvent(c.UserContext(), payload, signatureHeader)
	if err != nil {
		// Signature and payload rejections answer 400.
		var appErr *models.AppError
		if errors.As(err, &appErr) && (appErr.Code == models.ErrCodeAuthentication || appErr.Code == models.ErrCodeValidation) {
			return writeError(c, h.logger, fiber.StatusBadRequest, appErr)
		}
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).SendString("received")
}

// GetPurchasedCourses lists every completed purchase. Admins only.
func (h *PaymentHandler) GetPurchasedCourses(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	purchases, err := h.courseService.ListCompletedPurchases(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(models.SuccessResponse(purchases, ""))
}

func (h *PaymentHandler) GetPurchaseHistory(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	purchases, err := h.courseService.GetUserPurchaseHistory(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(models.SuccessResponse(purchases, ""))
}

func (h *PaymentHandler) GetCourseDetailWithPurchaseStatus(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	courseID, err := parseID(c, "courseId")
	if err != nil {
		return respondError(c, h.logger, models.NewValidationError("Invalid course ID"))
	}

	detail, err := h.courseService.GetCourseDetailWithPurchaseStatus(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(models.SuccessResponse(detail, ""))
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}
