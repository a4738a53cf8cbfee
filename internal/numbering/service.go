package numbering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Issue formats the current counter value and advances it by one. The store
// must belong to the transaction that inserts the numbered document.
func Issue(ctx context.Context, store Store, companyID int64, docType DocType) (Issued, error) {
	seq, err := store.Lock(ctx, companyID, docType)
	if err != nil {
		return Issued{}, err
	}
	issued := Issued{
		Number:   Format(seq.Prefix, seq.NextNumber),
		Prefix:   seq.Prefix,
		Sequence: seq.NextNumber,
	}
	seq.NextNumber++
	if err := store.Save(ctx, seq); err != nil {
		return Issued{}, err
	}
	return issued, nil
}

// Service manages numbering settings for the signed-in company.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a numbering service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Settings returns every document type's sequence, using defaults for types
// that have not issued a number yet.
func (s *Service) Settings(ctx context.Context) ([]Sequence, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.List(ctx, id.CompanyID)
	if err != nil {
		return nil, err
	}
	byType := make(map[DocType]Sequence, len(stored))
	for _, seq := range stored {
		byType[seq.DocType] = seq
	}
	out := make([]Sequence, 0, len(DocTypes))
	for _, t := range DocTypes {
		seq, ok := byType[t]
		if !ok {
			seq = Sequence{CompanyID: id.CompanyID, DocType: t, Prefix: DefaultPrefix(t), NextNumber: 1}
		}
		out = append(out, seq)
	}
	return out, nil
}

// UpdateSettings changes a sequence's prefix and next number. The counter may
// only move forward so previously issued numbers are never handed out again.
func (s *Service) UpdateSettings(ctx context.Context, docType DocType, req UpdateSettingsRequest) (Sequence, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Sequence{}, err
	}
	if DefaultPrefix(docType) == "" {
		return Sequence{}, shared.NewValidationError("doc_type", "is unknown")
	}
	req.Prefix = strings.ToUpper(strings.TrimSpace(req.Prefix))
	if err := shared.ValidateStruct(req); err != nil {
		return Sequence{}, err
	}

	var updated Sequence
	err = s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		seq, err := store.Lock(ctx, id.CompanyID, docType)
		if err != nil {
			return err
		}
		if req.NextNumber < seq.NextNumber {
			return fmt.Errorf("%w (current %d)", ErrSequenceRewind, seq.NextNumber)
		}
		seq.Prefix = req.Prefix
		seq.NextNumber = req.NextNumber
		if err := store.Save(ctx, seq); err != nil {
			return err
		}
		updated = seq
		return nil
	})
	if err != nil {
		return Sequence{}, err
	}
	s.logger.Info("numbering settings updated",
		slog.Int64("company_id", id.CompanyID),
		slog.String("doc_type", string(docType)),
		slog.String("prefix", updated.Prefix),
		slog.Int64("next_number", updated.NextNumber))
	return updated, nil
}
