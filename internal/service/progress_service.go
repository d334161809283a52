package service

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"go.uber.org/zap"
)

type ProgressService struct {
	courseRepo   repository.CourseRepository
	progressRepo repository.ProgressRepository
	metrics      metrics.MetricsCollector
	logger       *zap.Logger
	timeouts     Timeouts
}

func NewProgressService(courseRepo repository.CourseRepository, progressRepo repository.ProgressRepository, collector metrics.MetricsCollector, log *zap.Logger, timeouts Timeouts) *ProgressService {
	return &ProgressService{
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		metrics:      collector,
		logger:       log.Named("progress"),
		timeouts:     timeouts.withDefaults(),
	}
}

// GetProgress never creates a progress record.
func (s *ProgressService) GetProgress(ctx context.Context, userID, courseID uint) (*models.ProgressResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}

	progress, err := s.progressRepo.Get(ctx, userID, courseID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.ProgressResponse{
			CourseDetails: course,
			Progress:      []models.LectureProgress{},
			Completed:     false,
		}, nil
	}
	if err != nil {
		return nil, storeError(err, "course progress")
	}

	return toProgressResponse(course, progress), nil
}

func (s *ProgressService) RecordLectureViewed(ctx context.Context, userID, courseID, lectureID uint) (*models.ProgressResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}
	ok, err := s.courseRepo.HasLecture(ctx, courseID, lectureID)
	if err != nil {
		return nil, storeError(err, "lecture")
	}
	if !ok {
		return nil, models.NewNotFoundError("lecture")
	}

	progress, err := s.progressRepo.MarkLectureViewed(ctx, userID, courseID, lectureID)
	if err != nil {
		return nil, storeError(err, "course progress")
	}

	s.metrics.RecordLectureViewed()
	if progress.Completed {
		s.logger.Debug("course completed", zap.Uint("user_id", userID), zap.Uint("course_id", courseID))
	}

	return toProgressResponse(course, progress), nil
}

func (s *ProgressService) MarkCourseCompleted(ctx context.Context, userID, courseID uint) (*models.ProgressResponse, error) {
	return s.setAllViewed(ctx, userID, courseID, true)
}

func (s *ProgressService) MarkCourseIncomplete(ctx context.Context, userID, courseID uint) (*models.ProgressResponse, error) {
	return s.setAllViewed(ctx, userID, courseID, false)
}

func (s *ProgressService) setAllViewed(ctx context.Context, userID, courseID uint, viewed bool) (*models.ProgressResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	progress, err := s.progressRepo.SetAllViewed(ctx, userID, courseID, viewed)
	if err != nil {
		return nil, storeError(err, "course progress")
	}

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}

	return toProgressResponse(course, progress), nil
}

func toProgressResponse(course *models.Course, progress *models.CourseProgress) *models.ProgressResponse {
	entries := progress.LectureProgress
	if entries == nil {
		entries = []models.LectureProgress{}
	}
	return &models.ProgressResponse{
		CourseDetails: course,
		Progress:      entries,
		Completed:     progress.Completed,
	}
}
