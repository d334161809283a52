package repository

import (
	"context"
	"fmt"

	"github.com/sefazor/ourcourses-backend/internal/models"
)

// SeedDemoData inserts a demo instructor, a demo student and one three-lecture
// course when the catalog is empty.
func SeedDemoData(ctx context.Context, users UserRepository, courses CourseRepository) error {
	count, err := courses.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	instructor := &models.User{Name: "Demo Instructor", Email: "instructor@ourcourses.dev", Role: models.RoleInstructor}
	if err := users.Create(ctx, instructor); err != nil {
		return fmt.Errorf("failed to add demo instructor: %w", err)
	}

	student := &models.User{Name: "Demo Student", Email: "student@ourcourses.dev", Role: models.RoleStudent}
	if err := users.Create(ctx, student); err != nil {
		return fmt.Errorf("failed to add demo student: %w", err)
	}

	course := &models.Course{
		Title:       "Go for Backend Developers",
		Subtitle:    "Services, storage and payments",
		Description: "Build a production backend from the first handler to the payment webhook.",
		Category:    "Programming",
		Level:       "Beginner",
		Price:       499,
		CreatorID:   instructor.ID,
		IsPublished: true,
		Lectures: []models.Lecture{
			{Title: "Project layout", Position: 1, IsPreviewFree: true},
			{Title: "Talking to Postgres", Position: 2},
			{Title: "Taking payments", Position: 3},
		},
	}
	if err := courses.Create(ctx, course); err != nil {
		return fmt.Errorf("failed to add demo course: %w", err)
	}

	return nil
}
