package repository

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	userCoursesTable    = "user_enrolled_courses"
	courseStudentsTable = "course_enrolled_students"
)

type GormEntitlementStore struct {
	db *gorm.DB
}

func NewEntitlementStore(db *gorm.DB) *GormEntitlementStore {
	return &GormEntitlementStore{db: db}
}

func (s *GormEntitlementStore) CompletePurchase(ctx context.Context, sessionID string, amount *float64) (*models.Purchase, bool, error) {
	var purchase models.Purchase
	transitioned := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_session_id = ?", sessionID).
			First(&purchase).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if purchase.IsCompleted() {
			return nil
		}

		updates := map[string]interface{}{"status": models.PurchaseStatusCompleted}
		if amount != nil {
			updates["amount"] = *amount
		}
		res := tx.Model(&models.Purchase{}).
			Where("id = ? AND status <> ?", purchase.ID, models.PurchaseStatusCompleted).
			Updates(updates)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEntitlement
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		purchase.Status = models.PurchaseStatusCompleted
		if amount != nil {
			purchase.Amount = *amount
		}
		transitioned = true

		return grantEntitlements(tx, purchase.UserID, purchase.CourseID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		return &purchase, false, err
	}

	return &purchase, transitioned, nil
}

func (s *GormEntitlementStore) GrantEntitlements(ctx context.Context, purchase *models.Purchase) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return grantEntitlements(tx, purchase.UserID, purchase.CourseID)
	})
}

func (s *GormEntitlementStore) ListMissingEntitlements(ctx context.Context) ([]models.Purchase, error) {
	purchases := []models.Purchase{}
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PurchaseStatusCompleted).
		Where(
			s.db.Where("NOT EXISTS (SELECT 1 FROM "+userCoursesTable+" uc WHERE uc.user_id = purchases.user_id AND uc.course_id = purchases.course_id)").
				Or("NOT EXISTS (SELECT 1 FROM "+courseStudentsTable+" cs WHERE cs.course_id = purchases.course_id AND cs.user_id = purchases.user_id)"),
		).
		Order("id ASC").
		Find(&purchases).Error
	return purchases, err
}

// grantEntitlements unlocks every lecture of the course and adds the
// enrollment on both sides. Each step is safe to repeat.
func grantEntitlements(tx *gorm.DB, userID, courseID uint) error {
	if err := tx.Model(&models.Lecture{}).
		Where("course_id = ? AND is_preview_free = ?", courseID, false).
		Update("is_preview_free", true).Error; err != nil {
		return err
	}

	if err := tx.Table(userCoursesTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]interface{}{"user_id": userID, "course_id": courseID}).Error; err != nil {
		return err
	}

	return tx.Table(courseStudentsTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]interface{}{"course_id": courseID, "user_id": userID}).Error
}
