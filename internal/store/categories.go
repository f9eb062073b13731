package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"clinicrx/m/domain"
)

type CategoryStore struct {
	base
}

func (s *CategoryStore) Create(ctx context.Context, c domain.Category) (*domain.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, domain.Validationf("category name is required")
	}
	err := s.db.QueryRowxContext(ctx, s.q(`INSERT INTO categories (name, description) VALUES (?, ?) RETURNING id`),
		c.Name, c.Description).Scan(&c.ID)
	if err != nil {
		return nil, classify("create category", err)
	}
	return &c, nil
}

func (s *CategoryStore) Get(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.GetContext(ctx, &c, s.q(`SELECT id, name, description FROM categories WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("category %d", id)
	}
	if err != nil {
		return nil, classify("get category", err)
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	cats := []domain.Category{}
	if err := s.db.SelectContext(ctx, &cats, `SELECT id, name, description FROM categories ORDER BY name, id`); err != nil {
		return nil, classify("list categories", err)
	}
	return cats, nil
}

func (s *CategoryStore) Update(ctx context.Context, id int64, c domain.Category) (*domain.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, domain.Validationf("category name is required")
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE categories SET name = ?, description = ? WHERE id = ?`), c.Name, c.Description, id)
	if err != nil {
		return nil, classify("update category", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, classify("update category", err)
	} else if n == 0 {
		return nil, domain.NotFoundf("category %d", id)
	}
	c.ID = id
	return &c, nil
}

// Delete refuses while any medication or material still points at the
// category.
func (s *CategoryStore) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, "delete category", func(tx *sqlx.Tx) error {
		var refs int
		err := tx.GetContext(ctx, &refs, s.q(`SELECT
                (SELECT COUNT(*) FROM medications WHERE category_id = ?) +
                (SELECT COUNT(*) FROM materials WHERE category_id = ?)`), id, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return domain.Conflictf("category %d is used by %d inventory items", id, refs)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM categories WHERE id = ?`), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
