package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"clinicrx/m/domain"
	"clinicrx/m/internal/database"
	"clinicrx/m/internal/folio"
	"clinicrx/m/internal/migrations"
	"clinicrx/m/internal/store"
)

const memoryDSN = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"

var testNow = time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)

type fixture struct {
	*store.Stores
	db  *sqlx.DB
	ctx context.Context
}

func newFixture(t *testing.T, intn func(int) int) *fixture {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, memoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Apply(db))

	if intn == nil {
		intn = folio.Sequence(42)
	}
	st := store.New(db,
		store.WithClock(func() time.Time { return testNow }),
		store.WithFolios(folio.New(intn)),
	)
	return &fixture{Stores: st, db: db, ctx: context.Background()}
}

func (f *fixture) patient(t *testing.T, name string) *domain.Patient {
	t.Helper()
	p, err := f.Patients.Create(f.ctx, domain.Patient{Name: name, School: "North High", Age: 15})
	require.NoError(t, err)
	return p
}

func (f *fixture) nurse(t *testing.T, email, fullName string) *domain.User {
	t.Helper()
	u, err := f.Users.Create(f.ctx, domain.User{Username: "nurse", FullName: fullName, Email: email, Password: "hash", Role: domain.RoleNurse})
	require.NoError(t, err)
	return u
}

func (f *fixture) medication(t *testing.T, name string, stock, min int) *domain.Medication {
	t.Helper()
	m, err := f.Medications.Create(f.ctx, domain.MedicationInput{ItemInput: domain.ItemInput{Name: name, Stock: stock, MinStock: min}})
	require.NoError(t, err)
	return m
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
