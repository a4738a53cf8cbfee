package items

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	internalShared "github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type mockRepository struct {
	items  map[int64]Item
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: make(map[int64]Item), nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, companyID int64, _ shared.ListFilters) ([]Item, int, error) {
	all, _ := m.All(ctx, companyID)
	return all, len(all), nil
}

func (m *mockRepository) All(_ context.Context, companyID int64) ([]Item, error) {
	var out []Item
	for id := int64(1); id < m.nextID; id++ {
		if it, ok := m.items[id]; ok && it.CompanyID == companyID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockRepository) Get(_ context.Context, companyID, id int64) (Item, error) {
	it, ok := m.items[id]
	if !ok || it.CompanyID != companyID {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (m *mockRepository) byNumber(companyID int64, number string) (Item, bool) {
	for _, it := range m.items {
		if it.CompanyID == companyID && it.ItemNumber == number {
			return it, true
		}
	}
	return Item{}, false
}

func (m *mockRepository) Create(_ context.Context, it Item) (Item, error) {
	if _, exists := m.byNumber(it.CompanyID, it.ItemNumber); exists {
		return Item{}, ErrDuplicate
	}
	it.ID = m.nextID
	m.nextID++
	m.items[it.ID] = it
	return it, nil
}

func (m *mockRepository) Upsert(ctx context.Context, batch []Item) (int, error) {
	for _, it := range batch {
		if existing, ok := m.byNumber(it.CompanyID, it.ItemNumber); ok {
			it.ID = existing.ID
			m.items[it.ID] = it
			continue
		}
		if _, err := m.Create(ctx, it); err != nil {
			return 0, err
		}
	}
	return len(batch), nil
}

func (m *mockRepository) Update(_ context.Context, it Item) error {
	if existing, ok := m.items[it.ID]; !ok || existing.CompanyID != it.CompanyID {
		return ErrNotFound
	}
	m.items[it.ID] = it
	return nil
}

func (m *mockRepository) Delete(_ context.Context, companyID, id int64) error {
	if it, ok := m.items[id]; !ok || it.CompanyID != companyID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func ctxFor(companyID int64) context.Context {
	return internalShared.ContextWithIdentity(context.Background(), internalShared.Identity{UserID: 4, CompanyID: companyID})
}

func amount(s string) ledger.Amount {
	return ledger.NewAmount(decimal.RequireFromString(s))
}

func TestCreateRejectsNegativePrices(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.Create(ctxFor(1), Request{ItemNumber: "A1", Description: "Widget", UnitPrice: amount("-1")})
	var verr *internalShared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "unit_price")
}

func TestCreateDuplicateNumber(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Create(ctxFor(1), Request{ItemNumber: "A1", Description: "Widget"})
	require.NoError(t, err)

	_, err = svc.Create(ctxFor(1), Request{ItemNumber: "A1", Description: "Other"})
	require.ErrorIs(t, err, internalShared.ErrConflict)

	_, err = svc.Create(ctxFor(2), Request{ItemNumber: "A1", Description: "Other company"})
	require.NoError(t, err)
}

func TestImportUpsertsByItemNumber(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	_, err := svc.Create(ctxFor(1), Request{ItemNumber: "A1", Description: "Old", UnitPrice: amount("5")})
	require.NoError(t, err)

	input := "item_number,description,unit_price\nA1,Widget,7.50\n,No number,3\nB2,,4\n"
	result, err := svc.Import(ctxFor(1), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, Skipped: 1}, result)

	all, err := repo.All(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Widget", all[0].Description)
	assert.True(t, all[0].UnitPrice.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, "B2", all[1].Description)
}

func TestItemLineInput(t *testing.T) {
	it := Item{ItemNumber: "A1", Description: "Widget", UnitPrice: decimal.NewFromInt(50), SalesTaxApplicable: decimal.RequireFromString("8.5")}

	line := ledger.ComputeLine(it.LineInput(decimal.NewFromInt(2)))

	assert.True(t, line.ValueSalesExcludingST.Equal(decimal.NewFromInt(100)))
	assert.True(t, line.Total.Equal(decimal.NewFromInt(117)))
}
