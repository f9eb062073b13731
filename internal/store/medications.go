package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"clinicrx/m/domain"
)

// DefaultExpiryWindowDays is used by FindExpiringWithin when no window is given.
const DefaultExpiryWindowDays = 30

const medicationColumns = itemColumns + `, expires_on, lot, manufacturer`

type medicationRow struct {
	itemRow
	ExpiresOn    sql.NullString `db:"expires_on"`
	Lot          string         `db:"lot"`
	Manufacturer string         `db:"manufacturer"`
}

func mapMedication(r medicationRow) (domain.Medication, error) {
	item, err := mapItem(r.itemRow)
	if err != nil {
		return domain.Medication{}, err
	}
	expires, err := parseDate(r.ExpiresOn)
	if err != nil {
		return domain.Medication{}, err
	}
	return domain.Medication{
		InventoryItem: item,
		ExpiresOn:     expires,
		Lot:           r.Lot,
		Manufacturer:  r.Manufacturer,
	}, nil
}

type MedicationStore struct {
	base
}

func (s *MedicationStore) Create(ctx context.Context, in domain.MedicationInput) (*domain.Medication, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	status := domain.DeriveStatus(in.Stock, in.MinStock)

	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`INSERT INTO medications (name, description, acquired_on, expires_on, lot, manufacturer, status, stock, min_stock, unit_price, category_id, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		strings.TrimSpace(in.Name), in.Description, formatDate(in.AcquiredOn), formatDate(in.ExpiresOn), in.Lot, in.Manufacturer,
		string(status), in.Stock, in.MinStock, in.UnitPrice, in.CategoryID, now, now).Scan(&id)
	if err != nil {
		return nil, classify("create medication", err)
	}
	return s.Get(ctx, id)
}

func (s *MedicationStore) Get(ctx context.Context, id int64) (*domain.Medication, error) {
	meds, err := s.selectMany(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(meds) == 0 {
		return nil, domain.NotFoundf("medication %d", id)
	}
	return &meds[0], nil
}

func (s *MedicationStore) List(ctx context.Context) ([]domain.Medication, error) {
	return s.selectMany(ctx, `ORDER BY id DESC`)
}

// Update overwrites the fields present in patch and recomputes the status.
func (s *MedicationStore) Update(ctx context.Context, id int64, patch domain.MedicationPatch) (*domain.Medication, error) {
	err := s.withTx(ctx, "update medication", func(tx *sqlx.Tx) error {
		var row medicationRow
		if err := tx.GetContext(ctx, &row, s.q(`SELECT `+medicationColumns+` FROM medications WHERE id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundf("medication %d", id)
			}
			return err
		}
		cur, err := mapMedication(row)
		if err != nil {
			return err
		}

		in := cur.Input()
		patch.Apply(&in)
		expires, lot, manufacturer := patch.ApplyExpiry(cur.ExpiresOn), cur.Lot, cur.Manufacturer
		if patch.Lot != nil {
			lot = *patch.Lot
		}
		if patch.Manufacturer != nil {
			manufacturer = *patch.Manufacturer
		}
		if err := in.Validate(); err != nil {
			return err
		}
		status := domain.DeriveStatus(in.Stock, in.MinStock)

		_, err = tx.ExecContext(ctx, s.q(`UPDATE medications SET name = ?, description = ?, acquired_on = ?, expires_on = ?, lot = ?, manufacturer = ?,
                status = ?, stock = ?, min_stock = ?, unit_price = ?, category_id = ?, updated_at = ? WHERE id = ?`),
			strings.TrimSpace(in.Name), in.Description, formatDate(in.AcquiredOn), formatDate(expires), lot, manufacturer,
			string(status), in.Stock, in.MinStock, in.UnitPrice, in.CategoryID, s.now(), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateStock sets only the stock level; the status follows.
func (s *MedicationStore) UpdateStock(ctx context.Context, id int64, stock int) (*domain.Medication, error) {
	return s.Update(ctx, id, domain.MedicationPatch{ItemPatch: domain.ItemPatch{Stock: &stock}})
}

// Delete removes the medication. Prescription lines that referenced it keep
// their free-text description.
func (s *MedicationStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM medications WHERE id = ?`), id)
	if err != nil {
		return false, classify("delete medication", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete medication", err)
	}
	return n > 0, nil
}

func (s *MedicationStore) FindByName(ctx context.Context, name string) ([]domain.Medication, error) {
	return s.selectMany(ctx, `WHERE `+s.contains("name")+` ORDER BY name, id`, likePattern(name))
}

func (s *MedicationStore) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Medication, error) {
	st, err := domain.ParseStatus(string(status))
	if err != nil {
		return nil, err
	}
	return s.selectMany(ctx, `WHERE status = ? ORDER BY expires_on, id`, string(st))
}

// FindLowStock returns medications at or below their minimum stock.
func (s *MedicationStore) FindLowStock(ctx context.Context) ([]domain.Medication, error) {
	return s.selectMany(ctx, `WHERE stock <= min_stock ORDER BY stock, id`)
}

// FindExpiringWithin returns medications expiring between today and today
// plus days, both inclusive. days <= 0 uses DefaultExpiryWindowDays.
func (s *MedicationStore) FindExpiringWithin(ctx context.Context, days int) ([]domain.Medication, error) {
	if days <= 0 {
		days = DefaultExpiryWindowDays
	}
	today := s.now()
	until := today.AddDate(0, 0, days)
	return s.selectMany(ctx, `WHERE expires_on IS NOT NULL AND expires_on BETWEEN ? AND ? ORDER BY expires_on, id`,
		today.Format(dateLayout), until.Format(dateLayout))
}

func (s *MedicationStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM medications`); err != nil {
		return 0, classify("count medications", err)
	}
	return n, nil
}

func (s *MedicationStore) selectMany(ctx context.Context, clause string, args ...any) ([]domain.Medication, error) {
	var rows []medicationRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+medicationColumns+` FROM medications `+clause), args...); err != nil {
		return nil, classify("select medications", err)
	}
	meds := make([]domain.Medication, 0, len(rows))
	items := make([]*domain.InventoryItem, 0, len(rows))
	for _, r := range rows {
		m, err := mapMedication(r)
		if err != nil {
			return nil, classify("map medication", err)
		}
		meds = append(meds, m)
	}
	for i := range meds {
		items = append(items, &meds[i].InventoryItem)
	}
	if err := s.fillCategoryNames(ctx, items); err != nil {
		return nil, err
	}
	return meds, nil
}
