package repository

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEntitlement is returned when completing a purchase would give
	// the user a second completed purchase for the same course.
	ErrDuplicateEntitlement = errors.New("user already holds a completed purchase for this course")
	// ErrDuplicateSession is returned when a checkout session id is already
	// bound to another purchase.
	ErrDuplicateSession = errors.New("checkout session already bound to a purchase")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	// GetByID loads the user with its enrolled courses.
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	Count(ctx context.Context) (int64, error)
	// GetByID loads the course with creator and lectures ordered by position.
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	HasLecture(ctx context.Context, courseID, lectureID uint) (bool, error)
	EnrolledStudentIDs(ctx context.Context, courseID uint) ([]uint, error)
}

type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	// AttachSession binds a gateway session to a purchase that has none yet.
	AttachSession(ctx context.Context, purchaseID uint, sessionID string) error
	// MarkFailed moves a pending purchase to failed. Non-pending purchases are left alone.
	MarkFailed(ctx context.Context, purchaseID uint) (bool, error)
	MarkFailedBySession(ctx context.Context, sessionID string) (bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	HasCompleted(ctx context.Context, userID, courseID uint) (bool, error)
	ListCompleted(ctx context.Context) ([]models.Purchase, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error)
}

// EntitlementStore applies the purchase completion and its entitlement
// fan-out as one unit.
type EntitlementStore interface {
	// CompletePurchase transitions the purchase bound to sessionID to completed,
	// unlocks the course lectures and adds both enrollment set entries. The
	// returned bool is false when the purchase was already completed and
	// nothing was changed.
	CompletePurchase(ctx context.Context, sessionID string, amount *float64) (*models.Purchase, bool, error)
	// GrantEntitlements re-applies the fan-out for an already completed purchase.
	GrantEntitlements(ctx context.Context, purchase *models.Purchase) error
	// ListMissingEntitlements returns completed purchases whose enrollment
	// entries are incomplete.
	ListMissingEntitlements(ctx context.Context) ([]models.Purchase, error)
}

type ProgressRepository interface {
	Get(ctx context.Context, userID, courseID uint) (*models.CourseProgress, error)
	MarkLectureViewed(ctx context.Context, userID, courseID, lectureID uint) (*models.CourseProgress, error)
	SetAllViewed(ctx context.Context, userID, courseID uint, viewed bool) (*models.CourseProgress, error)
}
