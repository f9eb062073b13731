package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"

	"clinicrx/m/domain"
)

const patientColumns = `id, name, school, age, phone, email, created_at`

// AgeRange counts the patients aged Min through Max inclusive.
type AgeRange struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// AgeSummary describes the patient population.
type AgeSummary struct {
	Patients   int        `json:"patients"`
	AverageAge float64    `json:"average_age"`
	Schools    int        `json:"schools"`
	Ranges     []AgeRange `json:"ranges"`
}

var ageRanges = []AgeRange{
	{Label: "minors", Min: domain.MinPatientAge, Max: 17},
	{Label: "young_adults", Min: 18, Max: 25},
	{Label: "adults", Min: 26, Max: 40},
	{Label: "seniors", Min: 41, Max: domain.MaxPatientAge},
}

type PatientStore struct {
	base
}

func (s *PatientStore) Create(ctx context.Context, p domain.Patient) (*domain.Patient, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.CreatedAt = s.now()
	err := s.db.QueryRowxContext(ctx, s.q(`INSERT INTO patients (name, school, age, phone, email, created_at)
                VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		p.Name, p.School, p.Age, p.Phone, p.Email, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return nil, classify("create patient", err)
	}
	return &p, nil
}

func (s *PatientStore) Get(ctx context.Context, id int64) (*domain.Patient, error) {
	var p domain.Patient
	err := s.db.GetContext(ctx, &p, s.q(`SELECT `+patientColumns+` FROM patients WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("patient %d", id)
	}
	if err != nil {
		return nil, classify("get patient", err)
	}
	return &p, nil
}

func (s *PatientStore) List(ctx context.Context) ([]domain.Patient, error) {
	return s.selectMany(ctx, `ORDER BY name, id`)
}

// Search matches term against name, school, email and phone, case-insensitively.
func (s *PatientStore) Search(ctx context.Context, term string) ([]domain.Patient, error) {
	like := likePattern(term)
	return s.selectMany(ctx, `WHERE `+s.contains("name")+` OR `+s.contains("school")+` OR `+s.contains("email")+
		` OR `+s.contains("phone")+` ORDER BY name, id`, like, like, like, like)
}

// BySchool returns the patients whose school contains school, ignoring case.
func (s *PatientStore) BySchool(ctx context.Context, school string) ([]domain.Patient, error) {
	return s.selectMany(ctx, `WHERE `+s.contains("school")+` ORDER BY name, id`, likePattern(school))
}

// Schools lists the distinct non-empty schools in alphabetical order.
func (s *PatientStore) Schools(ctx context.Context) ([]string, error) {
	schools := []string{}
	if err := s.db.SelectContext(ctx, &schools, `SELECT DISTINCT school FROM patients WHERE school <> '' ORDER BY school`); err != nil {
		return nil, classify("list schools", err)
	}
	return schools, nil
}

// AgeSummary reports the average age, rounded to one decimal, and the
// patient count per age range. An empty table averages 0.
func (s *PatientStore) AgeSummary(ctx context.Context) (*AgeSummary, error) {
	var sum AgeSummary
	var avg sql.NullFloat64
	if err := s.db.GetContext(ctx, &avg, `SELECT AVG(age) FROM patients`); err != nil {
		return nil, classify("average patient age", err)
	}
	if avg.Valid {
		sum.AverageAge = math.Round(avg.Float64*10) / 10
	}
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	sum.Patients = n
	schools, err := s.Schools(ctx)
	if err != nil {
		return nil, err
	}
	sum.Schools = len(schools)

	sum.Ranges = make([]AgeRange, len(ageRanges))
	for i, r := range ageRanges {
		if err := s.db.GetContext(ctx, &r.Count, s.q(`SELECT COUNT(*) FROM patients WHERE age BETWEEN ? AND ?`), r.Min, r.Max); err != nil {
			return nil, classify("count patients by age", err)
		}
		sum.Ranges[i] = r
	}
	return &sum, nil
}

// Update replaces the editable fields of the patient.
func (s *PatientStore) Update(ctx context.Context, id int64, p domain.Patient) (*domain.Patient, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE patients SET name = ?, school = ?, age = ?, phone = ?, email = ? WHERE id = ?`),
		p.Name, p.School, p.Age, p.Phone, p.Email, id)
	if err != nil {
		return nil, classify("update patient", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, classify("update patient", err)
	} else if n == 0 {
		return nil, domain.NotFoundf("patient %d", id)
	}
	return s.Get(ctx, id)
}

// Delete refuses while the patient still has prescriptions on record.
func (s *PatientStore) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, "delete patient", func(tx *sqlx.Tx) error {
		var refs int
		if err := tx.GetContext(ctx, &refs, s.q(`SELECT COUNT(*) FROM prescriptions WHERE patient_id = ?`), id); err != nil {
			return err
		}
		if refs > 0 {
			return domain.Conflictf("patient %d has %d prescriptions", id, refs)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM patients WHERE id = ?`), id)
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

func (s *PatientStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patients`); err != nil {
		return 0, classify("count patients", err)
	}
	return n, nil
}

func (s *PatientStore) selectMany(ctx context.Context, clause string, args ...any) ([]domain.Patient, error) {
	patients := []domain.Patient{}
	if err := s.db.SelectContext(ctx, &patients, s.q(`SELECT `+patientColumns+` FROM patients `+clause), args...); err != nil {
		return nil, classify("select patients", err)
	}
	return patients, nil
}
