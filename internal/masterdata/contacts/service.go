package contacts

import (
	"context"
	"errors"
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

func (s *Service) List(ctx context.Context, kind Kind, filters shared.ListFilters) ([]Contact, int, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, id.CompanyID, kind, filters)
}

func (s *Service) Get(ctx context.Context, kind Kind, contactID int64) (Contact, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Contact{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, kind, contactID)
}

func (s *Service) Create(ctx context.Context, kind Kind, req Request) (Contact, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Contact{}, err
	}
	c, err := build(req)
	if err != nil {
		return Contact{}, err
	}
	c.CompanyID = id.CompanyID
	c.Kind = kind
	return s.repo.Create(ctx, c)
}

func (s *Service) Update(ctx context.Context, kind Kind, contactID int64, req Request) (Contact, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Contact{}, err
	}
	c, err := build(req)
	if err != nil {
		return Contact{}, err
	}
	c.ID = contactID
	c.CompanyID = id.CompanyID
	c.Kind = kind
	if err := s.repo.Update(ctx, c); err != nil {
		return Contact{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, kind, contactID)
}

func (s *Service) Delete(ctx context.Context, kind Kind, contactID int64) error {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, id.CompanyID, kind, contactID)
}

// Resolve loads a contact referenced by a document and checks it belongs to
// the caller's company and has the expected kind. Missing and foreign ids
// both report not found.
func (s *Service) Resolve(ctx context.Context, contactID int64, kind Kind) (Contact, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return Contact{}, err
	}
	field := string(kind) + "_id"
	c, err := s.repo.Find(ctx, contactID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Contact{}, err
	}
	if err != nil || c.CompanyID != id.CompanyID {
		return Contact{}, fmt.Errorf("%w: %s %d", ErrNotFound, kind, contactID)
	}
	if c.Kind != kind {
		return Contact{}, internalShared.NewValidationError(field, "must reference a "+string(kind))
	}
	return c, nil
}

// Import creates one contact per CSV row. Rows without a name are skipped;
// any other invalid row rejects the whole file.
func (s *Service) Import(ctx context.Context, kind Kind, r io.Reader) (ImportResult, error) {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	recs, err := csvio.ReadRecords(r)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	batch := make([]Contact, 0, len(recs))
	for i, rec := range recs {
		req := RequestFromRecord(rec)
		if req == nil {
			result.Skipped++
			continue
		}
		c, err := build(*req)
		if err != nil {
			return ImportResult{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		c.CompanyID = id.CompanyID
		c.Kind = kind
		batch = append(batch, c)
	}
	result.Imported, err = s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.Info("contacts imported",
		slog.Int64("company_id", id.CompanyID),
		slog.String("kind", string(kind)),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// Export writes every contact of kind as CSV.
func (s *Service) Export(ctx context.Context, kind Kind, w io.Writer) error {
	id, err := internalShared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	all, err := s.repo.All(ctx, id.CompanyID, kind)
	if err != nil {
		return err
	}
	rows := make([][]string, len(all))
	for i, c := range all {
		rows[i] = csvRow(c)
	}
	return csvio.WriteRecords(w, csvHeader, rows)
}

func build(req Request) (Contact, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := internalShared.ValidateStruct(req); err != nil {
		return Contact{}, err
	}
	return Contact{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		TaxNumber: strings.TrimSpace(req.TaxNumber),
		Address:   strings.TrimSpace(req.Address),
	}, nil
}
