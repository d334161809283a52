package database

import (
	"fmt"
	"time"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// completedPurchaseIndex keeps at most one completed purchase per user and course.
const completedPurchaseIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_user_course_completed
	ON purchases (user_id, course_id) WHERE status = 'completed'`

func NewDatabase(databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Lecture{},
		&models.Purchase{},
		&models.CourseProgress{},
		&models.LectureProgress{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(completedPurchaseIndex).Error; err != nil {
		return fmt.Errorf("failed to create completed purchase index: %w", err)
	}

	return nil
}
