package numbering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type seqKey struct {
	companyID int64
	docType   DocType
}

// mockRepository stages writes on a copy that only replaces the committed
// rows when the transaction callback succeeds.
type mockRepository struct {
	rows    map[seqKey]Sequence
	saveErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: make(map[seqKey]Sequence)}
}

type mockStore struct {
	repo *mockRepository
	rows map[seqKey]Sequence
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	staged := make(map[seqKey]Sequence, len(m.rows))
	for k, v := range m.rows {
		staged[k] = v
	}
	if err := fn(ctx, &mockStore{repo: m, rows: staged}); err != nil {
		return err
	}
	m.rows = staged
	return nil
}

func (m *mockRepository) List(_ context.Context, companyID int64) ([]Sequence, error) {
	var out []Sequence
	for k, v := range m.rows {
		if k.companyID == companyID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *mockStore) Lock(_ context.Context, companyID int64, docType DocType) (Sequence, error) {
	k := seqKey{companyID, docType}
	seq, ok := s.rows[k]
	if !ok {
		seq = Sequence{CompanyID: companyID, DocType: docType, Prefix: DefaultPrefix(docType), NextNumber: 1}
		s.rows[k] = seq
	}
	return seq, nil
}

func (s *mockStore) Save(_ context.Context, seq Sequence) error {
	if s.repo.saveErr != nil {
		return s.repo.saveErr
	}
	s.rows[seqKey{seq.CompanyID, seq.DocType}] = seq
	return nil
}

func identityCtx(companyID int64) context.Context {
	return shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 1, CompanyID: companyID})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "EST-007", Format("EST", 7))
	assert.Equal(t, "INV-001", Format("INV", 1))
	assert.Equal(t, "PINV-1234", Format("PINV", 1234))
}

func TestIssueAdvancesOnlyOnCommit(t *testing.T) {
	repo := newMockRepository()
	repo.rows[seqKey{1, DocEstimate}] = Sequence{CompanyID: 1, DocType: DocEstimate, Prefix: "EST", NextNumber: 7}

	var issued Issued
	err := repo.WithTx(context.Background(), func(ctx context.Context, store Store) error {
		var err error
		issued, err = Issue(ctx, store, 1, DocEstimate)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "EST-007", issued.Number)
	assert.Equal(t, int64(7), issued.Sequence)
	assert.Equal(t, int64(8), repo.rows[seqKey{1, DocEstimate}].NextNumber)

	insertFailed := errors.New("insert estimate failed")
	err = repo.WithTx(context.Background(), func(ctx context.Context, store Store) error {
		if _, err := Issue(ctx, store, 1, DocEstimate); err != nil {
			return err
		}
		return insertFailed
	})
	require.ErrorIs(t, err, insertFailed)
	assert.Equal(t, int64(8), repo.rows[seqKey{1, DocEstimate}].NextNumber)
}

func TestIssueCreatesDefaultSequence(t *testing.T) {
	repo := newMockRepository()

	var numbers []string
	for _, dt := range DocTypes {
		err := repo.WithTx(context.Background(), func(ctx context.Context, store Store) error {
			issued, err := Issue(ctx, store, 5, dt)
			numbers = append(numbers, issued.Number)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"EST-001", "INV-001", "PINV-001"}, numbers)
}

func TestIssueIsPerCompany(t *testing.T) {
	repo := newMockRepository()
	issue := func(companyID int64) string {
		var n string
		require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, store Store) error {
			issued, err := Issue(ctx, store, companyID, DocSalesInvoice)
			n = issued.Number
			return err
		}))
		return n
	}

	assert.Equal(t, "INV-001", issue(1))
	assert.Equal(t, "INV-002", issue(1))
	assert.Equal(t, "INV-001", issue(2))
}

func TestIssueSaveFailure(t *testing.T) {
	repo := newMockRepository()
	repo.saveErr = errors.New("disk full")

	err := repo.WithTx(context.Background(), func(ctx context.Context, store Store) error {
		_, err := Issue(ctx, store, 1, DocEstimate)
		return err
	})
	require.Error(t, err)
	_, exists := repo.rows[seqKey{1, DocEstimate}]
	assert.False(t, exists)
}

func TestSettingsFillsDefaults(t *testing.T) {
	repo := newMockRepository()
	repo.rows[seqKey{1, DocSalesInvoice}] = Sequence{CompanyID: 1, DocType: DocSalesInvoice, Prefix: "SI", NextNumber: 42}
	svc := NewService(repo, nil)

	seqs, err := svc.Settings(identityCtx(1))
	require.NoError(t, err)
	require.Len(t, seqs, 3)
	assert.Equal(t, "EST-001", seqs[0].Preview())
	assert.Equal(t, "SI-042", seqs[1].Preview())
	assert.Equal(t, "PINV-001", seqs[2].Preview())
}

func TestSettingsRequiresIdentity(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Settings(context.Background())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestUpdateSettingsOnlyMovesForward(t *testing.T) {
	repo := newMockRepository()
	repo.rows[seqKey{1, DocEstimate}] = Sequence{CompanyID: 1, DocType: DocEstimate, Prefix: "EST", NextNumber: 10}
	svc := NewService(repo, nil)

	seq, err := svc.UpdateSettings(identityCtx(1), DocEstimate, UpdateSettingsRequest{Prefix: "q", NextNumber: 100})
	require.NoError(t, err)
	assert.Equal(t, "Q", seq.Prefix)
	assert.Equal(t, int64(100), repo.rows[seqKey{1, DocEstimate}].NextNumber)

	_, err = svc.UpdateSettings(identityCtx(1), DocEstimate, UpdateSettingsRequest{Prefix: "Q", NextNumber: 50})
	require.ErrorIs(t, err, ErrSequenceRewind)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, int64(100), repo.rows[seqKey{1, DocEstimate}].NextNumber)
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.UpdateSettings(identityCtx(1), DocEstimate, UpdateSettingsRequest{Prefix: "", NextNumber: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateSettings(identityCtx(1), DocEstimate, UpdateSettingsRequest{Prefix: "E-X", NextNumber: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateSettings(identityCtx(1), DocType("receipt"), UpdateSettingsRequest{Prefix: "R", NextNumber: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
