package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"clinicrx/m/domain"
)

const materialColumns = itemColumns + `, in_maintenance`

type materialRow struct {
	itemRow
	InMaintenance bool `db:"in_maintenance"`
}

func mapMaterial(r materialRow) (domain.Material, error) {
	item, err := mapItem(r.itemRow)
	if err != nil {
		return domain.Material{}, err
	}
	return domain.Material{InventoryItem: item, InMaintenance: r.InMaintenance}, nil
}

type MaterialStore struct {
	base
}

func (s *MaterialStore) Create(ctx context.Context, in domain.MaterialInput) (*domain.Material, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	status := domain.MaterialStatus(in.Stock, in.MinStock, false)

	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`INSERT INTO materials (name, description, acquired_on, status, in_maintenance, stock, min_stock, unit_price, category_id, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		strings.TrimSpace(in.Name), in.Description, formatDate(in.AcquiredOn), string(status), false,
		in.Stock, in.MinStock, in.UnitPrice, in.CategoryID, now, now).Scan(&id)
	if err != nil {
		return nil, classify("create material", err)
	}
	return s.Get(ctx, id)
}

func (s *MaterialStore) Get(ctx context.Context, id int64) (*domain.Material, error) {
	mats, err := s.selectMany(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(mats) == 0 {
		return nil, domain.NotFoundf("material %d", id)
	}
	return &mats[0], nil
}

func (s *MaterialStore) List(ctx context.Context) ([]domain.Material, error) {
	return s.selectMany(ctx, `ORDER BY id DESC`)
}

// Update overwrites the fields present in patch and recomputes the status.
func (s *MaterialStore) Update(ctx context.Context, id int64, patch domain.MaterialPatch) (*domain.Material, error) {
	return s.rewrite(ctx, "update material", id, func(m *domain.Material, in *domain.ItemInput) {
		patch.Apply(in)
	})
}

func (s *MaterialStore) UpdateStock(ctx context.Context, id int64, stock int) (*domain.Material, error) {
	return s.Update(ctx, id, domain.MaterialPatch{ItemPatch: domain.ItemPatch{Stock: &stock}})
}

// SetMaintenance flags or clears a material as under repair. Clearing the flag
// puts the stock-derived status back.
func (s *MaterialStore) SetMaintenance(ctx context.Context, id int64, on bool) (*domain.Material, error) {
	return s.rewrite(ctx, "set material maintenance", id, func(m *domain.Material, _ *domain.ItemInput) {
		m.InMaintenance = on
	})
}

func (s *MaterialStore) rewrite(ctx context.Context, op string, id int64, change func(*domain.Material, *domain.ItemInput)) (*domain.Material, error) {
	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		var row materialRow
		if err := tx.GetContext(ctx, &row, s.q(`SELECT `+materialColumns+` FROM materials WHERE id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundf("material %d", id)
			}
			return err
		}
		cur, err := mapMaterial(row)
		if err != nil {
			return err
		}
		in := cur.Input()
		change(&cur, &in)
		if err := in.Validate(); err != nil {
			return err
		}
		status := domain.MaterialStatus(in.Stock, in.MinStock, cur.InMaintenance)

		_, err = tx.ExecContext(ctx, s.q(`UPDATE materials SET name = ?, description = ?, acquired_on = ?, status = ?, in_maintenance = ?,
                stock = ?, min_stock = ?, unit_price = ?, category_id = ?, updated_at = ? WHERE id = ?`),
			strings.TrimSpace(in.Name), in.Description, formatDate(in.AcquiredOn), string(status), cur.InMaintenance,
			in.Stock, in.MinStock, in.UnitPrice, in.CategoryID, s.now(), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *MaterialStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM materials WHERE id = ?`), id)
	if err != nil {
		return false, classify("delete material", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete material", err)
	}
	return n > 0, nil
}

func (s *MaterialStore) FindByName(ctx context.Context, name string) ([]domain.Material, error) {
	return s.selectMany(ctx, `WHERE `+s.contains("name")+` ORDER BY name, id`, likePattern(name))
}

func (s *MaterialStore) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Material, error) {
	st, err := domain.ParseStatus(string(status))
	if err != nil {
		return nil, err
	}
	return s.selectMany(ctx, `WHERE status = ? ORDER BY name, id`, string(st))
}

func (s *MaterialStore) FindLowStock(ctx context.Context) ([]domain.Material, error) {
	return s.selectMany(ctx, `WHERE stock <= min_stock ORDER BY stock, id`)
}

func (s *MaterialStore) FindInMaintenance(ctx context.Context) ([]domain.Material, error) {
	return s.selectMany(ctx, `WHERE status = ? ORDER BY name, id`, string(domain.StatusMaintenance))
}

func (s *MaterialStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM materials`); err != nil {
		return 0, classify("count materials", err)
	}
	return n, nil
}

func (s *MaterialStore) selectMany(ctx context.Context, clause string, args ...any) ([]domain.Material, error) {
	var rows []materialRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+materialColumns+` FROM materials `+clause), args...); err != nil {
		return nil, classify("select materials", err)
	}
	mats := make([]domain.Material, 0, len(rows))
	for _, r := range rows {
		m, err := mapMaterial(r)
		if err != nil {
			return nil, classify("map material", err)
		}
		mats = append(mats, m)
	}
	items := make([]*domain.InventoryItem, len(mats))
	for i := range mats {
		items[i] = &mats[i].InventoryItem
	}
	if err := s.fillCategoryNames(ctx, items); err != nil {
		return nil, err
	}
	return mats, nil
}
