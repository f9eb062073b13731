package database

import (
	"database/sql/driver"
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// FoldFunc is the SQLite function that lower-cases text with Unicode rules.
// The built-in LOWER only folds ASCII letters.
const FoldFunc = "fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunc, 1, fold)
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// FoldExpr wraps a column expression so it compares case-insensitively under
// driver. PostgreSQL's LOWER already honours Unicode.
func FoldExpr(driver, expr string) string {
	if driver == DriverPostgres {
		return "LOWER(" + expr + ")"
	}
	return FoldFunc + "(" + expr + ")"
}

// Open connects to the database behind dsn using driver ("sqlite" or "pgx").
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite only allows one writer; a single connection also keeps
		// in-memory databases alive.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return db, nil
}

// Connect is Open for process startup: it exits on failure.
func Connect(driver, dsn string) *sqlx.DB {
	db, err := Open(driver, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}
