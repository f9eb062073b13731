// Package store owns every SQL statement of the service. Each write that
// touches more than one row runs in a single transaction; stock-affecting
// writes recompute the item status before persisting.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"clinicrx/m/internal/database"
	"clinicrx/m/internal/folio"
)

// FolioSource produces prescription folios.
type FolioSource interface {
	Next(now time.Time) string
}

type options struct {
	now    func() time.Time
	folios FolioSource
	log    zerolog.Logger
}

type Option func(*options)

// WithClock overrides the time source used for timestamps and folios.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithFolios(f FolioSource) Option {
	return func(o *options) { o.folios = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Stores bundles the per-entity stores sharing one database handle.
type Stores struct {
	Categories    *CategoryStore
	Patients      *PatientStore
	Users         *UserStore
	Medications   *MedicationStore
	Materials     *MaterialStore
	Prescriptions *PrescriptionStore
	Stats         *StatsStore
}

func New(db *sqlx.DB, opts ...Option) *Stores {
	o := options{
		now:    func() time.Time { return time.Now() },
		folios: folio.New(nil),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	b := base{db: db, clock: o.now, log: o.log}
	return &Stores{
		Categories:    &CategoryStore{base: b},
		Patients:      &PatientStore{base: b},
		Users:         &UserStore{base: b},
		Medications:   &MedicationStore{base: b},
		Materials:     &MaterialStore{base: b},
		Prescriptions: &PrescriptionStore{base: b, folios: o.folios},
		Stats:         &StatsStore{base: b},
	}
}

type base struct {
	db    *sqlx.DB
	clock func() time.Time
	log   zerolog.Logger
}

// now is UTC with microsecond precision so SQLite and PostgreSQL round-trip
// the same value.
func (b base) now() time.Time {
	return b.clock().UTC().Truncate(time.Microsecond)
}

// q rebinds ? placeholders for the active driver.
func (b base) q(query string) string {
	return b.db.Rebind(query)
}

// withTx runs fn in a transaction, committing when fn succeeds. Errors come
// back classified.
func (b base) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Sprintf("%s: begin", op), err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Sprintf("%s: commit", op), err)
	}
	return nil
}

// lookupNames returns id → display value for the given ids. expr is a column
// expression of table.
func (b base) lookupNames(ctx context.Context, table, expr string, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT id, %s AS name FROM %s WHERE id IN (?)`, expr, table), ids)
	if err != nil {
		return nil, classify("prepare name lookup", err)
	}
	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	if err := b.db.SelectContext(ctx, &rows, b.q(query), args...); err != nil {
		return nil, classify(fmt.Sprintf("lookup %s names", table), err)
	}
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns term into a substring pattern for contains. Wildcards in
// term match literally.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

// fold lower-cases a column expression the same way strings.ToLower does.
func (b base) fold(expr string) string {
	return database.FoldExpr(b.db.DriverName(), expr)
}

// contains is a case-insensitive substring test of expr against a
// likePattern argument.
func (b base) contains(expr string) string {
	return b.fold(expr) + ` LIKE ? ESCAPE '\'`
}
