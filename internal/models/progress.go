package models

import "time"

type CourseProgress struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	UserID          uint              `json:"user_id" gorm:"not null;uniqueIndex:ux_course_progress_user_course,priority:1"`
	CourseID        uint              `json:"course_id" gorm:"not null;uniqueIndex:ux_course_progress_user_course,priority:2"`
	Completed       bool              `json:"completed" gorm:"not null;default:false"`
	LectureProgress []LectureProgress `json:"lecture_progress" gorm:"foreignKey:CourseProgressID;constraint:OnDelete:CASCADE;"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type LectureProgress struct {
	ID               uint      `json:"-" gorm:"primaryKey"`
	CourseProgressID uint      `json:"-" gorm:"not null;uniqueIndex:ux_lecture_progress_entry,priority:1"`
	LectureID        uint      `json:"lecture_id" gorm:"not null;uniqueIndex:ux_lecture_progress_entry,priority:2"`
	Viewed           bool      `json:"viewed" gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

type ProgressResponse struct {
	CourseDetails *Course           `json:"course_details"`
	Progress      []LectureProgress `json:"progress"`
	Completed     bool              `json:"completed"`
}
