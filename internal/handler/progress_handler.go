package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/service"
	"go.uber.org/zap"
)

type ProgressHandler struct {
	progressService *service.ProgressService
	logger          *zap.Logger
}

func NewProgressHandler(progressService *service.ProgressService, log *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		logger:          log.Named("progress_handler"),
	}
}

func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	return h.withCourse(c, "", h.progressService.GetProgress)
}

func (h *ProgressHandler) RecordLectureViewed(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	courseID, err := parseID(c, "courseId")
	if err != nil {
		return respondError(c, h.logger, models.NewValidationError("Invalid course ID"))
	}
	lectureID, err := parseID(c, "lectureId")
	if err != nil {
		return respondError(c, h.logger, models.NewValidationError("Invalid lecture ID"))
	}

	progress, err := h.progressService.RecordLectureViewed(c.UserContext(), userID, courseID, lectureID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(models.SuccessResponse(progress, "Lecture progress updated"))
}

func (h *ProgressHandler) MarkCourseCompleted(c *fiber.Ctx) error {
	return h.withCourse(c, "Course marked as completed", h.progressService.MarkCourseCompleted)
}

func (h *ProgressHandler) MarkCourseIncomplete(c *fiber.Ctx) error {
	return h.withCourse(c, "Course marked as incomplete", h.progressService.MarkCourseIncomplete)
}

type courseProgressFunc func(ctx context.Context, userID, courseID uint) (*models.ProgressResponse, error)

func (h *ProgressHandler) withCourse(c *fiber.Ctx, message string, fn courseProgressFunc) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthenticated(c)
	}

	courseID, err := parseID(c, "courseId")
	if err != nil {
		return respondError(c, h.logger, models.NewValidationError("Invalid course ID"))
	}

	progress, err := fn(c.UserContext(), userID, courseID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(models.SuccessResponse(progress, message))
}
