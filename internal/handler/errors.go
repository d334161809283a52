package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"go.uber.org/zap"
)

var statusByCode = map[models.ErrorCode]int{
	models.ErrCodeValidation:     fiber.StatusBadRequest,
	models.ErrCodeNotFound:       fiber.StatusNotFound,
	models.ErrCodeConflict:       fiber.StatusConflict,
	models.ErrCodeAuthentication: fiber.StatusUnauthorized,
	models.ErrCodeForbidden:      fiber.StatusForbidden,
	models.ErrCodeGateway:        fiber.StatusBadGateway,
	models.ErrCodeGatewayTimeout: fiber.StatusGatewayTimeout,
	models.ErrCodeStoreTimeout:   fiber.StatusServiceUnavailable,
	models.ErrCodeStore:          fiber.StatusInternalServerError,
}

// StatusCode maps an error code to its HTTP status.
func StatusCode(code models.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// respondError writes the JSON error envelope for err. Store failures are
// logged with their cause and answered with a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewStoreError(err)
	}
	return writeError(c, log, StatusCode(appErr.Code), appErr)
}

func writeError(c *fiber.Ctx, log *zap.Logger, status int, appErr *models.AppError) error {
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("code", string(appErr.Code)),
			zap.Error(appErr))
	}
	return c.Status(status).JSON(models.CodedErrorResponse(appErr.Code, appErr.Message))
}

// ErrorHandler is the app-wide fallback for errors that escape a handler.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	log = log.Named("http")

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
			return c.Status(fiberErr.Code).JSON(models.ErrorResponse(fiberErr.Message))
		}

		log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(
			models.CodedErrorResponse(models.ErrCodeStore, "internal server error"))
	}
}

func currentUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userID").(uint)
	return userID, ok && userID != 0
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(
		models.CodedErrorResponse(models.ErrCodeAuthentication, "User not authenticated"))
}
