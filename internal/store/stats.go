package store

import (
	"context"

	"clinicrx/m/domain"
)

// Summary is the data behind the clinic report.
type Summary struct {
	Medications          int                  `json:"medications"`
	Materials            int                  `json:"materials"`
	LowStockMedications  int                  `json:"low_stock_medications"`
	LowStockMaterials    int                  `json:"low_stock_materials"`
	MaterialsMaintenance int                  `json:"materials_in_maintenance"`
	ExpiringMedications  int                  `json:"expiring_medications"`
	Patients             int                  `json:"patients"`
	Prescriptions        int                  `json:"prescriptions"`
	PrescriptionsByState map[domain.State]int `json:"prescriptions_by_state"`
}

type StatsStore struct {
	base
}

func (s *StatsStore) Summary(ctx context.Context) (*Summary, error) {
	today := s.now()
	until := today.AddDate(0, 0, DefaultExpiryWindowDays)

	var sum Summary
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&sum.Medications, `SELECT COUNT(*) FROM medications`, nil},
		{&sum.Materials, `SELECT COUNT(*) FROM materials`, nil},
		{&sum.LowStockMedications, `SELECT COUNT(*) FROM medications WHERE stock <= min_stock`, nil},
		{&sum.LowStockMaterials, `SELECT COUNT(*) FROM materials WHERE stock <= min_stock`, nil},
		{&sum.MaterialsMaintenance, `SELECT COUNT(*) FROM materials WHERE status = ?`, []any{string(domain.StatusMaintenance)}},
		{&sum.ExpiringMedications, `SELECT COUNT(*) FROM medications WHERE expires_on IS NOT NULL AND expires_on BETWEEN ? AND ?`,
			[]any{today.Format(dateLayout), until.Format(dateLayout)}},
		{&sum.Patients, `SELECT COUNT(*) FROM patients`, nil},
		{&sum.Prescriptions, `SELECT COUNT(*) FROM prescriptions`, nil},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, s.q(c.query), c.args...); err != nil {
			return nil, classify("summary", err)
		}
	}

	byState, err := (&PrescriptionStore{base: s.base}).CountByState(ctx)
	if err != nil {
		return nil, err
	}
	sum.PrescriptionsByState = byState
	return &sum, nil
}
