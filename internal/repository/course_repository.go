package repository

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"gorm.io/gorm"
)

type GormCourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *GormCourseRepository {
	return &GormCourseRepository{db: db}
}

// Create stores the course together with its lectures.
func (r *GormCourseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Omit("Creator", "EnrolledStudents").Create(course).Error
}

func (r *GormCourseRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Course{}).Count(&count).Error
	return count, err
}

func (r *GormCourseRepository) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Preload("Lectures", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&course, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *GormCourseRepository) HasLecture(ctx context.Context, courseID, lectureID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Lecture{}).
		Where("id = ? AND course_id = ?", lectureID, courseID).
		Count(&count).Error
	return count > 0, err
}

func (r *GormCourseRepository) EnrolledStudentIDs(ctx context.Context, courseID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Table(courseStudentsTable).
		Where("course_id = ?", courseID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
