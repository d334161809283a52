package service

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"go.uber.org/zap"
)

// CourseService answers purchase-status questions about courses.
type CourseService struct {
	userRepo     repository.UserRepository
	courseRepo   repository.CourseRepository
	purchaseRepo repository.PurchaseRepository
	logger       *zap.Logger
	timeouts     Timeouts
}

func NewCourseService(userRepo repository.UserRepository, courseRepo repository.CourseRepository, purchaseRepo repository.PurchaseRepository, log *zap.Logger, timeouts Timeouts) *CourseService {
	return &CourseService{
		userRepo:     userRepo,
		courseRepo:   courseRepo,
		purchaseRepo: purchaseRepo,
		logger:       log.Named("course"),
		timeouts:     timeouts.withDefaults(),
	}
}

func (s *CourseService) GetCourseDetailWithPurchaseStatus(ctx context.Context, userID, courseID uint) (*models.CourseDetailResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, s.fail(err, "course", zap.Uint("course_id", courseID))
	}

	students, err := s.courseRepo.EnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return nil, s.fail(err, "course", zap.Uint("course_id", courseID))
	}

	purchased, err := s.purchaseRepo.HasCompleted(ctx, userID, courseID)
	if err != nil {
		return nil, s.fail(err, "purchase", zap.Uint("user_id", userID), zap.Uint("course_id", courseID))
	}

	return &models.CourseDetailResponse{
		Course:           course,
		EnrolledStudents: students,
		Purchased:        purchased,
	}, nil
}

// ListCompletedPurchases returns every completed purchase. Only admins may
// read other users' purchases.
func (s *CourseService) ListCompletedPurchases(ctx context.Context, callerID uint) ([]models.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	caller, err := s.userRepo.GetByID(ctx, callerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("purchase listing by unknown user", zap.Uint("user_id", callerID))
		return nil, models.NewForbiddenError("admin access required")
	case err != nil:
		return nil, s.fail(err, "user", zap.Uint("user_id", callerID))
	}
	if caller.Role != models.RoleAdmin {
		s.logger.Warn("purchase listing denied", zap.Uint("user_id", callerID), zap.String("role", caller.Role))
		return nil, models.NewForbiddenError("admin access required")
	}

	purchases, err := s.purchaseRepo.ListCompleted(ctx)
	if err != nil {
		return nil, s.fail(err, "purchase")
	}
	return purchases, nil
}

func (s *CourseService) GetUserPurchaseHistory(ctx context.Context, userID uint) ([]models.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	purchases, err := s.purchaseRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.fail(err, "purchase", zap.Uint("user_id", userID))
	}
	return purchases, nil
}

// fail maps a repository error and logs it unless it is a plain miss.
func (s *CourseService) fail(err error, resource string, fields ...zap.Field) error {
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("failed to read "+resource, append(fields, zap.Error(err))...)
	}
	return storeError(err, resource)
}
