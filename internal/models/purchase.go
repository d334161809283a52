package models

import "time"

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
)

// Purchase is the source of truth for payment state of one checkout attempt.
// PaymentSessionID stays nil until the gateway hands out a session.
type Purchase struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CourseID         uint      `json:"course_id" gorm:"not null;index"`
	Course           *Course   `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	UserID           uint      `json:"user_id" gorm:"not null;index"`
	Amount           float64   `json:"amount" gorm:"not null"`
	Status           string    `json:"status" gorm:"not null;default:'pending';index"`
	PaymentSessionID *string   `json:"payment_session_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Purchase) IsCompleted() bool {
	return p.Status == PurchaseStatusCompleted
}
