package audit

import (
	"context"
	"fmt"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 5000
)

// Repository reads audit_logs scoped to a company.
type Repository interface {
	Timeline(ctx context.Context, companyID int64, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Service serves the audit timeline of the current company.
type Service struct {
	repo Repository
}

// NewService builds the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := validateRange(filters); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	rows, err := s.repo.Timeline(ctx, id.CompanyID, filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRange(filters); err != nil {
		return nil, err
	}
	rows, err := s.repo.Timeline(ctx, id.CompanyID, filters, maxExportRows, 0)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

func validateRange(f TimelineFilters) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return shared.NewValidationError("to", "must not be before from")
	}
	return nil
}
