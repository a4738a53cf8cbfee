package taxrates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	internalShared "github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

var maxRate = decimal.NewFromInt(100)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]TaxRate, int, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, id.CompanyID, filters)
}

func (s *Service) Get(ctx context.Context, rateID int64) (TaxRate, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return TaxRate{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, rateID)
}

func (s *Service) Create(ctx context.Context, req Request) (TaxRate, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return TaxRate{}, err
	}
	rate, err := s.build(req)
	if err != nil {
		return TaxRate{}, err
	}
	rate.CompanyID = id.CompanyID
	return s.repo.Create(ctx, rate)
}

func (s *Service) Update(ctx context.Context, rateID int64, req Request) (TaxRate, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return TaxRate{}, err
	}
	rate, err := s.build(req)
	if err != nil {
		return TaxRate{}, err
	}
	rate.ID = rateID
	rate.CompanyID = id.CompanyID
	if err := s.repo.Update(ctx, rate); err != nil {
		return TaxRate{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, rateID)
}

func (s *Service) Delete(ctx context.Context, rateID int64) error {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, id.CompanyID, rateID)
}

// Resolve loads a tax rate referenced from a document. A rate owned by
// another company is reported exactly like a missing one.
func (s *Service) Resolve(ctx context.Context, rateID int64) (TaxRate, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return TaxRate{}, err
	}
	rate, err := s.repo.Find(ctx, rateID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return TaxRate{}, err
	}
	if err != nil || rate.CompanyID != id.CompanyID {
		return TaxRate{}, fmt.Errorf("%w: %d", ErrNotFound, rateID)
	}
	return rate, nil
}

func (s *Service) build(req Request) (TaxRate, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := internalShared.ValidateStruct(req); err != nil {
		return TaxRate{}, err
	}
	if req.RatePercent.IsNegative() || req.RatePercent.GreaterThan(maxRate) {
		return TaxRate{}, internalShared.NewValidationError("rate_percent", "must be between 0 and 100")
	}
	return TaxRate{Name: req.Name, RatePercent: req.RatePercent.Decimal}, nil
}
