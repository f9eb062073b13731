package migrations

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            full_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at DATETIME NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS categories (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        );`,
	`CREATE TABLE IF NOT EXISTS patients (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            school TEXT NOT NULL DEFAULT '',
            age INTEGER NOT NULL CHECK (age BETWEEN 1 AND 120),
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS medications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            acquired_on TEXT,
            expires_on TEXT,
            lot TEXT NOT NULL DEFAULT '',
            manufacturer TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            stock INTEGER NOT NULL,
            min_stock INTEGER NOT NULL,
            unit_price NUMERIC(10,2) NOT NULL DEFAULT 0,
            category_id INTEGER,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            FOREIGN KEY(category_id) REFERENCES categories(id)
        );`,
	`CREATE TABLE IF NOT EXISTS materials (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            acquired_on TEXT,
            status TEXT NOT NULL,
            in_maintenance BOOLEAN NOT NULL DEFAULT 0,
            stock INTEGER NOT NULL,
            min_stock INTEGER NOT NULL,
            unit_price NUMERIC(10,2) NOT NULL DEFAULT 0,
            category_id INTEGER,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            FOREIGN KEY(category_id) REFERENCES categories(id)
        );`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            folio TEXT NOT NULL UNIQUE,
            issued_at DATETIME NOT NULL,
            diagnosis TEXT NOT NULL,
            observations TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL,
            patient_id INTEGER NOT NULL,
            issued_by INTEGER NOT NULL,
            created_at DATETIME NOT NULL,
            FOREIGN KEY(patient_id) REFERENCES patients(id),
            FOREIGN KEY(issued_by) REFERENCES users(id)
        );`,
	`CREATE TABLE IF NOT EXISTS prescription_lines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            prescription_id INTEGER NOT NULL,
            medication TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            dosage TEXT NOT NULL DEFAULT '',
            duration TEXT NOT NULL DEFAULT '',
            instructions TEXT NOT NULL DEFAULT '',
            medication_id INTEGER,
            FOREIGN KEY(prescription_id) REFERENCES prescriptions(id),
            FOREIGN KEY(medication_id) REFERENCES medications(id) ON DELETE SET NULL
        );`,
	`CREATE INDEX IF NOT EXISTS prescription_lines_prescription ON prescription_lines (prescription_id);`,
	`CREATE INDEX IF NOT EXISTS prescriptions_patient ON prescriptions (patient_id, issued_at DESC);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL,
            full_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS categories (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        );`,
	`CREATE TABLE IF NOT EXISTS patients (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            school TEXT NOT NULL DEFAULT '',
            age INTEGER NOT NULL CHECK (age BETWEEN 1 AND 120),
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS medications (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            acquired_on TEXT,
            expires_on TEXT,
            lot TEXT NOT NULL DEFAULT '',
            manufacturer TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            stock INTEGER NOT NULL,
            min_stock INTEGER NOT NULL,
            unit_price NUMERIC(10,2) NOT NULL DEFAULT 0,
            category_id BIGINT REFERENCES categories(id),
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS materials (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            acquired_on TEXT,
            status TEXT NOT NULL,
            in_maintenance BOOLEAN NOT NULL DEFAULT FALSE,
            stock INTEGER NOT NULL,
            min_stock INTEGER NOT NULL,
            unit_price NUMERIC(10,2) NOT NULL DEFAULT 0,
            category_id BIGINT REFERENCES categories(id),
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
            id BIGSERIAL PRIMARY KEY,
            folio TEXT NOT NULL UNIQUE,
            issued_at TIMESTAMPTZ NOT NULL,
            diagnosis TEXT NOT NULL,
            observations TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL,
            patient_id BIGINT NOT NULL REFERENCES patients(id),
            issued_by BIGINT NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS prescription_lines (
            id BIGSERIAL PRIMARY KEY,
            prescription_id BIGINT NOT NULL REFERENCES prescriptions(id),
            medication TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            dosage TEXT NOT NULL DEFAULT '',
            duration TEXT NOT NULL DEFAULT '',
            instructions TEXT NOT NULL DEFAULT '',
            medication_id BIGINT REFERENCES medications(id) ON DELETE SET NULL
        );`,
	`CREATE INDEX IF NOT EXISTS prescription_lines_prescription ON prescription_lines (prescription_id);`,
	`CREATE INDEX IF NOT EXISTS prescriptions_patient ON prescriptions (patient_id, issued_at DESC);`,
}

// Apply creates the schema for the driver behind db.
func Apply(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == "pgx" {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Run creates the database schema required by the clinic backend.
func Run(db *sqlx.DB) {
	if err := Apply(db); err != nil {
		log.Fatal(err)
	}
}
