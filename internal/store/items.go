package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"clinicrx/m/domain"
)

const dateLayout = "2006-01-02"

const itemColumns = `id, name, description, acquired_on, status, stock, min_stock, unit_price, category_id, created_at, updated_at`

type itemRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	AcquiredOn  sql.NullString  `db:"acquired_on"`
	Status      string          `db:"status"`
	Stock       int             `db:"stock"`
	MinStock    int             `db:"min_stock"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	CategoryID  sql.NullInt64   `db:"category_id"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func mapItem(r itemRow) (domain.InventoryItem, error) {
	acquired, err := parseDate(r.AcquiredOn)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("item %d acquired_on: %w", r.ID, err)
	}
	it := domain.InventoryItem{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		AcquiredOn:  acquired,
		Stock:       r.Stock,
		MinStock:    r.MinStock,
		UnitPrice:   r.UnitPrice,
		Status:      domain.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.CategoryID.Valid {
		id := r.CategoryID.Int64
		it.CategoryID = &id
	}
	return it, nil
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// fillCategoryNames merges category names into items.
func (b base) fillCategoryNames(ctx context.Context, items []*domain.InventoryItem) error {
	var ids []int64
	for _, it := range items {
		if it.CategoryID != nil {
			ids = append(ids, *it.CategoryID)
		}
	}
	names, err := b.lookupNames(ctx, "categories", "name", uniqueIDs(ids))
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.CategoryID != nil {
			it.CategoryName = names[*it.CategoryID]
		}
	}
	return nil
}
