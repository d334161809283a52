package service

import (
	"context"
	"errors"
	"time"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
)

// Timeouts bounds every outbound call a service makes.
type Timeouts struct {
	Gateway time.Duration
	Store   time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Gateway <= 0 {
		t.Gateway = 10 * time.Second
	}
	if t.Store <= 0 {
		t.Store = 5 * time.Second
	}
	return t
}

// storeError converts a repository error into the service taxonomy. resource
// names what was looked up when the error is ErrNotFound.
func storeError(err error, resource string) *models.AppError {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return models.NewNotFoundError(resource)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewStoreTimeoutError(err)
	default:
		return models.NewStoreError(err)
	}
}
