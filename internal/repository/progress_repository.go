package repository

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *GormProgressRepository {
	return &GormProgressRepository{db: db}
}

func (r *GormProgressRepository) Get(ctx context.Context, userID, courseID uint) (*models.CourseProgress, error) {
	var progress models.CourseProgress
	err := withOrderedEntries(r.db.WithContext(ctx)).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// MarkLectureViewed creates the progress record on first use, upserts the
// lecture entry and recomputes completion. The progress row stays locked for
// the whole transaction so concurrent views of one course serialize.
func (r *GormProgressRepository) MarkLectureViewed(ctx context.Context, userID, courseID, lectureID uint) (*models.CourseProgress, error) {
	var progress models.CourseProgress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.CourseProgress{UserID: userID, CourseID: courseID}
		if err := tx.Omit("LectureProgress").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		if err := lockProgress(tx, userID, courseID, &progress); err != nil {
			return err
		}

		entry := models.LectureProgress{
			CourseProgressID: progress.ID,
			LectureID:        lectureID,
			Viewed:           true,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_progress_id"}, {Name: "lecture_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"viewed": true}),
		}).Create(&entry).Error; err != nil {
			return err
		}

		var viewed, total int64
		if err := tx.Model(&models.LectureProgress{}).
			Where("course_progress_id = ? AND viewed = ?", progress.ID, true).
			Count(&viewed).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Lecture{}).
			Where("course_id = ?", courseID).
			Count(&total).Error; err != nil {
			return err
		}

		completed := total > 0 && viewed == total
		if err := tx.Model(&models.CourseProgress{}).
			Where("id = ?", progress.ID).
			Update("completed", completed).Error; err != nil {
			return err
		}

		return withOrderedEntries(tx).First(&progress, progress.ID).Error
	})
	if err != nil {
		return nil, err
	}

	return &progress, nil
}

func (r *GormProgressRepository) SetAllViewed(ctx context.Context, userID, courseID uint, viewed bool) (*models.CourseProgress, error) {
	var progress models.CourseProgress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockProgress(tx, userID, courseID, &progress); err != nil {
			return err
		}

		if err := tx.Model(&models.LectureProgress{}).
			Where("course_progress_id = ?", progress.ID).
			Update("viewed", viewed).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.CourseProgress{}).
			Where("id = ?", progress.ID).
			Update("completed", viewed).Error; err != nil {
			return err
		}

		return withOrderedEntries(tx).First(&progress, progress.ID).Error
	})
	if err != nil {
		return nil, err
	}

	return &progress, nil
}

func lockProgress(tx *gorm.DB, userID, courseID uint, progress *models.CourseProgress) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func withOrderedEntries(db *gorm.DB) *gorm.DB {
	return db.Preload("LectureProgress", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}
