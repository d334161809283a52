package models

import "time"

type Course struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Title            string    `json:"title" gorm:"not null"`
	Subtitle         string    `json:"subtitle"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Level            string    `json:"level"`
	Price            float64   `json:"price" gorm:"not null;default:0"`
	Thumbnail        string    `json:"thumbnail"`
	CreatorID        uint      `json:"creator_id" gorm:"not null;index"`
	Creator          *User     `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	IsPublished      bool      `json:"is_published" gorm:"default:false"`
	Lectures         []Lecture `json:"lectures" gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;"`
	EnrolledStudents []User    `json:"-" gorm:"many2many:course_enrolled_students;"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Lecture struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	CourseID      uint      `json:"course_id" gorm:"not null;index"`
	Title         string    `json:"title" gorm:"not null"`
	VideoURL      string    `json:"video_url"`
	IsPreviewFree bool      `json:"is_preview_free" gorm:"not null;default:false"`
	Position      int       `json:"position" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CourseDetailResponse is a course as seen by one caller.
type CourseDetailResponse struct {
	Course           *Course `json:"course"`
	EnrolledStudents []uint  `json:"enrolled_students"`
	Purchased        bool    `json:"purchased"`
}
