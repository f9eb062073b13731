package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	HTTPPort    string
	DBDriver    string
	DatabaseDSN string
	LogLevel    string
	LogPretty   bool
	SeedCSV     string
}

const defaultSQLiteDSN = "file:clinic.db?_pragma=foreign_keys(1)&_time_format=sqlite"

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	driver := strings.ToLower(os.Getenv("DB_DRIVER"))
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
	case "postgres", "pgx":
		driver = "pgx"
	default:
		log.Printf("invalid DB_DRIVER value %q, defaulting to sqlite", driver)
		driver = "sqlite"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = defaultSQLiteDSN
		} else {
			dsn = postgresDSN()
		}
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	pretty, _ := strconv.ParseBool(os.Getenv("LOG_PRETTY"))

	seed := os.Getenv("SEED_CSV")
	if seed == "" {
		seed = "assets/catalog.csv"
	}

	return Config{
		Secret:      secret,
		HTTPPort:    port,
		DBDriver:    driver,
		DatabaseDSN: dsn,
		LogLevel:    level,
		LogPretty:   pretty,
		SeedCSV:     seed,
	}
}

func postgresDSN() string {
	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}
	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}
	name := os.Getenv("DB_NAME")
	if name == "" {
		name = "clinic"
	}
	password := os.Getenv("DB_PASSWORD")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, dbPort, name)
}
