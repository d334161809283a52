package models

import (
	"time"
)

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

type User struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"not null"`
	Email           string    `json:"email" gorm:"unique;not null"`
	Role            string    `json:"role" gorm:"not null;default:'student'"`
	PhotoURL        string    `json:"photo_url"`
	EnrolledCourses []Course  `json:"enrolled_courses,omitempty" gorm:"many2many:user_enrolled_courses;"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EnrolledCourseIDs flattens the preloaded enrollment set.
func (u *User) EnrolledCourseIDs() []uint {
	ids := make([]uint, 0, len(u.EnrolledCourses))
	for _, c := range u.EnrolledCourses {
		ids = append(ids, c.ID)
	}
	return ids
}
