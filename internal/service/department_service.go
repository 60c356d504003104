package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type departmentStore interface {
	List(ctx context.Context) ([]models.Department, error)
}

// DepartmentService exposes the department lookup table.
type DepartmentService struct {
	departments departmentStore
	logger      *zap.Logger
}

// NewDepartmentService constructs DepartmentService.
func NewDepartmentService(departments departmentStore, logger *zap.Logger) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{departments: departments, logger: logger}
}

// List returns all departments.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	if departments == nil {
		departments = []models.Department{}
	}
	return departments, nil
}
