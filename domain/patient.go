package domain

import (
	"strings"
	"time"
)

type Category struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

type Patient struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	School    string    `json:"school" db:"school"`
	Age       int       `json:"age" db:"age"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	MinPatientAge = 1
	MaxPatientAge = 120
)

func (p Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Validationf("name is required")
	}
	if p.Age < MinPatientAge || p.Age > MaxPatientAge {
		return Validationf("age must be between %d and %d", MinPatientAge, MaxPatientAge)
	}
	return nil
}
