package repository

import (
	"context"
	"errors"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"gorm.io/gorm"
)

type GormPurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{
		db: db,
	}
}

func (r *GormPurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	err := r.db.WithContext(ctx).Omit("Course").Create(purchase).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if purchase.IsCompleted() {
			return ErrDuplicateEntitlement
		}
		return ErrDuplicateSession
	}
	return err
}

func (r *GormPurchaseRepository) AttachSession(ctx context.Context, purchaseID uint, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND payment_session_id IS NULL", purchaseID).
		Update("payment_session_id", sessionID)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSession
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormPurchaseRepository) MarkFailed(ctx context.Context, purchaseID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Update("status", models.PurchaseStatusFailed)
	return res.RowsAffected > 0, res.Error
}

func (r *GormPurchaseRepository) MarkFailedBySession(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("payment_session_id = ? AND status = ?", sessionID, models.PurchaseStatusPending).
		Update("status", models.PurchaseStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := r.GetBySessionID(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *GormPurchaseRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where("payment_session_id = ?", sessionID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *GormPurchaseRepository) HasCompleted(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, models.PurchaseStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

func (r *GormPurchaseRepository) ListCompleted(ctx context.Context) ([]models.Purchase, error) {
	purchases := []models.Purchase{}
	err := r.db.WithContext(ctx).Preload("Course").
		Where("status = ?", models.PurchaseStatusCompleted).
		Order("created_at DESC").
		Find(&purchases).Error
	return purchases, err
}

func (r *GormPurchaseRepository) ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error) {
	purchases := []models.Purchase{}
	err := r.db.WithContext(ctx).Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&purchases).Error
	return purchases, err
}
