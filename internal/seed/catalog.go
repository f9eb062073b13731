package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"clinicrx/m/domain"
	"clinicrx/m/internal/store"
)

// CatalogRow is one line of the starter catalog CSV.
type CatalogRow struct {
	Category     string `csv:"category"`
	Name         string `csv:"name"`
	Description  string `csv:"description"`
	Stock        int    `csv:"stock"`
	MinStock     int    `csv:"min_stock"`
	UnitPrice    string `csv:"unit_price"`
	ExpiresOn    string `csv:"expires_on"`
	Lot          string `csv:"lot"`
	Manufacturer string `csv:"manufacturer"`
}

// Loader fills an empty medication table from a catalog CSV. Rows go
// through the stores so statuses are derived like any other write.
type Loader struct {
	stores *store.Stores
	log    zerolog.Logger
}

func NewLoader(stores *store.Stores, log zerolog.Logger) *Loader {
	return &Loader{stores: stores, log: log}
}

// LoadFile loads the catalog at path. A missing file is not an error.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Info().Str("path", path).Msg("no catalog to seed")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close()
	return l.Load(ctx, file)
}

// Load reads catalog rows from r. It does nothing when medications already
// exist. Rows that fail validation are logged and skipped.
func (l *Loader) Load(ctx context.Context, r io.Reader) (int, error) {
	existing, err := l.stores.Medications.Count(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		l.log.Debug().Int("medications", existing).Msg("catalog already seeded")
		return 0, nil
	}

	var rows []CatalogRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	categories, err := l.categoryIDs(ctx)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for i, row := range rows {
		in, err := l.medicationInput(ctx, row, categories)
		if err == nil {
			_, err = l.stores.Medications.Create(ctx, in)
		}
		if err != nil {
			if !errors.Is(err, domain.ErrValidation) {
				return seeded, err
			}
			l.log.Warn().Err(err).Int("row", i+2).Str("name", row.Name).Msg("skipping catalog row")
			continue
		}
		seeded++
	}
	l.log.Info().Int("rows", seeded).Msg("seeded medication catalog")
	return seeded, nil
}

func (l *Loader) categoryIDs(ctx context.Context) (map[string]int64, error) {
	cats, err := l.stores.Categories.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(cats))
	for _, c := range cats {
		ids[strings.ToLower(c.Name)] = c.ID
	}
	return ids, nil
}

func (l *Loader) medicationInput(ctx context.Context, row CatalogRow, categories map[string]int64) (domain.MedicationInput, error) {
	in := domain.MedicationInput{
		ItemInput: domain.ItemInput{
			Name:        strings.TrimSpace(row.Name),
			Description: strings.TrimSpace(row.Description),
			Stock:       row.Stock,
			MinStock:    row.MinStock,
		},
		Lot:          strings.TrimSpace(row.Lot),
		Manufacturer: strings.TrimSpace(row.Manufacturer),
	}
	if price := strings.TrimSpace(row.UnitPrice); price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return in, domain.Validationf("unit_price %q: %v", price, err)
		}
		in.UnitPrice = p
	}
	if exp := strings.TrimSpace(row.ExpiresOn); exp != "" {
		t, err := time.Parse("2006-01-02", exp)
		if err != nil {
			return in, domain.Validationf("expires_on %q: %v", exp, err)
		}
		in.ExpiresOn = &t
	}
	if name := strings.TrimSpace(row.Category); name != "" {
		id, ok := categories[strings.ToLower(name)]
		if !ok {
			cat, err := l.stores.Categories.Create(ctx, domain.Category{Name: name})
			if err != nil {
				return in, err
			}
			id = cat.ID
			categories[strings.ToLower(name)] = id
		}
		in.CategoryID = &id
	}
	return in, nil
}
