package items

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/arkhan2/invoicing-system-sub001/internal/csvio"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	internalShared "github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, id.CompanyID, filters)
}

func (s *Service) Get(ctx context.Context, itemID int64) (Item, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Item{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, itemID)
}

func (s *Service) Create(ctx context.Context, req Request) (Item, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Item{}, err
	}
	it, err := build(req)
	if err != nil {
		return Item{}, err
	}
	it.CompanyID = id.CompanyID
	return s.repo.Create(ctx, it)
}

func (s *Service) Update(ctx context.Context, itemID int64, req Request) (Item, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Item{}, err
	}
	it, err := build(req)
	if err != nil {
		return Item{}, err
	}
	it.ID = itemID
	it.CompanyID = id.CompanyID
	if err := s.repo.Update(ctx, it); err != nil {
		return Item{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, itemID)
}

func (s *Service) Delete(ctx context.Context, itemID int64) error {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, id.CompanyID, itemID)
}

// Import upserts catalog rows by item number.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	recs, err := csvio.ReadRecords(r)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	batch := make([]Item, 0, len(recs))
	for i, rec := range recs {
		req := RequestFromRecord(rec)
		if req == nil {
			result.Skipped++
			continue
		}
		it, err := build(*req)
		if err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		it.CompanyID = id.CompanyID
		batch = append(batch, it)
	}
	if result.Imported, err = s.repo.Upsert(ctx, batch); err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("items imported",
		slog.Int64("company_id", id.CompanyID),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// Export writes the whole catalog as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	all, err := s.repo.All(ctx, id.CompanyID)
	if err != nil {
		return err
	}
	rows := make([][]string, len(all))
	for i, it := range all {
		rows[i] = csvRow(it)
	}
	return csvio.WriteRecords(w, csvHeader, rows)
}

func build(req Request) (Item, error) {
	req.ItemNumber = strings.TrimSpace(req.ItemNumber)
	req.Description = strings.TrimSpace(req.Description)
	if err := internalShared.ValidateStruct(req); err != nil {
		return Item{}, err
	}
	fields := internalShared.FieldErrors{}
	if req.UnitPrice.IsNegative() {
		fields["unit_price"] = "must not be negative"
	}
	if req.SalesTaxApplicable.IsNegative() {
		fields["sales_tax_applicable"] = "must not be negative"
	}
	if req.ExtraTax.IsNegative() {
		fields["extra_tax"] = "must not be negative"
	}
	if req.FurtherTax.IsNegative() {
		fields["further_tax"] = "must not be negative"
	}
	if len(fields) > 0 {
		return Item{}, &internalShared.ValidationError{Fields: fields}
	}
	return Item{
		ItemNumber:         req.ItemNumber,
		Description:        req.Description,
		UOM:                strings.TrimSpace(req.UOM),
		UnitPrice:          req.UnitPrice.Decimal,
		SalesTaxApplicable: req.SalesTaxApplicable.Decimal,
		ExtraTax:           req.ExtraTax.Decimal,
		FurtherTax:         req.FurtherTax.Decimal,
	}, nil
}
