package models

type CreateCheckoutSessionRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

type CheckoutSession struct {
	PurchaseID uint   `json:"purchase_id"`
	SessionID  string `json:"session_id"`
	URL        string `json:"url"`
}
