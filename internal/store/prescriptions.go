package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"clinicrx/m/domain"
)

// folioAttempts bounds inserts with a generated folio.
const folioAttempts = 2

// DefaultStatsMonths is the window MonthlyStats covers when none is given.
const DefaultStatsMonths = 6

const monthLayout = "2006-01"

// MonthlyCount is the number of prescriptions issued in one calendar month.
type MonthlyCount struct {
	Month     string `json:"month"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

const userNameExpr = `CASE WHEN full_name <> '' THEN full_name ELSE username END`

const prescriptionColumns = `id, folio, issued_at, diagnosis, observations, state, patient_id, issued_by, created_at`

type prescriptionRow struct {
	ID           int64     `db:"id"`
	Folio        string    `db:"folio"`
	IssuedAt     time.Time `db:"issued_at"`
	Diagnosis    string    `db:"diagnosis"`
	Observations string    `db:"observations"`
	State        string    `db:"state"`
	PatientID    int64     `db:"patient_id"`
	IssuedBy     int64     `db:"issued_by"`
	CreatedAt    time.Time `db:"created_at"`
}

type lineRow struct {
	ID             int64         `db:"id"`
	PrescriptionID int64         `db:"prescription_id"`
	Medication     string        `db:"medication"`
	Quantity       int           `db:"quantity"`
	Dosage         string        `db:"dosage"`
	Duration       string        `db:"duration"`
	Instructions   string        `db:"instructions"`
	MedicationID   sql.NullInt64 `db:"medication_id"`
}

func mapPrescription(r prescriptionRow) domain.Prescription {
	return domain.Prescription{
		ID:           r.ID,
		Folio:        r.Folio,
		IssuedAt:     r.IssuedAt,
		Diagnosis:    r.Diagnosis,
		Observations: r.Observations,
		State:        domain.State(r.State),
		PatientID:    r.PatientID,
		IssuedBy:     r.IssuedBy,
		CreatedAt:    r.CreatedAt,
	}
}

func mapLine(r lineRow) domain.PrescriptionLine {
	l := domain.PrescriptionLine{
		ID:             r.ID,
		PrescriptionID: r.PrescriptionID,
		Medication:     r.Medication,
		Quantity:       r.Quantity,
		Dosage:         r.Dosage,
		Duration:       r.Duration,
		Instructions:   r.Instructions,
	}
	if r.MedicationID.Valid {
		id := r.MedicationID.Int64
		l.MedicationID = &id
	}
	return l
}

// PrescriptionStore persists prescriptions together with their lines.
// Lines are never written on their own.
type PrescriptionStore struct {
	base
	folios FolioSource
}

// Create stores a new active prescription and its lines in one transaction.
// When h.Folio is empty a folio is generated; a collision on a generated
// folio is retried once.
func (s *PrescriptionStore) Create(ctx context.Context, h domain.NewPrescription, lines []domain.LineInput) (*domain.Prescription, error) {
	h.Diagnosis = strings.TrimSpace(h.Diagnosis)
	if h.Diagnosis == "" {
		return nil, domain.Validationf("diagnosis is required")
	}
	if h.PatientID <= 0 {
		return nil, domain.Validationf("patient is required")
	}
	if h.IssuedBy <= 0 {
		return nil, domain.Validationf("issuing user is required")
	}
	normalized, err := domain.NormalizeLines(lines)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if h.IssuedAt.IsZero() {
		h.IssuedAt = now
	} else {
		h.IssuedAt = h.IssuedAt.UTC().Truncate(time.Microsecond)
	}

	h.Folio = strings.TrimSpace(h.Folio)
	generated := h.Folio == ""
	attempts := 1
	if generated {
		attempts = folioAttempts
	}

	var id int64
	for attempt := 1; ; attempt++ {
		folio := h.Folio
		if generated {
			folio = s.folios.Next(now)
		}
		id, err = s.insert(ctx, h, folio, now, normalized)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		if attempt >= attempts {
			return nil, domain.Conflictf("folio %s is already in use", folio)
		}
		s.log.Warn().Str("folio", folio).Int("attempt", attempt).Msg("prescription folio collision, retrying")
	}
	return s.Get(ctx, id)
}

func (s *PrescriptionStore) insert(ctx context.Context, h domain.NewPrescription, folio string, now time.Time, lines []domain.PrescriptionLine) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create prescription", func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, s.q(`INSERT INTO prescriptions (folio, issued_at, diagnosis, observations, state, patient_id, issued_by, created_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			folio, h.IssuedAt, h.Diagnosis, h.Observations, string(domain.StateActive), h.PatientID, h.IssuedBy, now).Scan(&id)
		if err != nil {
			return err
		}
		return s.insertLines(ctx, tx, id, lines)
	})
	return id, err
}

func (s *PrescriptionStore) insertLines(ctx context.Context, tx *sqlx.Tx, prescriptionID int64, lines []domain.PrescriptionLine) error {
	if len(lines) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, s.q(`INSERT INTO prescription_lines (prescription_id, medication, quantity, dosage, duration, instructions, medication_id)
                VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range lines {
		if _, err := stmt.ExecContext(ctx, prescriptionID, l.Medication, l.Quantity, l.Dosage, l.Duration, l.Instructions, l.MedicationID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the prescription with its lines in insertion order.
func (s *PrescriptionStore) Get(ctx context.Context, id int64) (*domain.Prescription, error) {
	var row prescriptionRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("prescription %d", id)
	}
	if err != nil {
		return nil, classify("get prescription", err)
	}
	p := mapPrescription(row)

	var lines []lineRow
	if err := s.db.SelectContext(ctx, &lines, s.q(`SELECT id, prescription_id, medication, quantity, dosage, duration, instructions, medication_id
                FROM prescription_lines WHERE prescription_id = ? ORDER BY id`), id); err != nil {
		return nil, classify("get prescription lines", err)
	}
	p.Lines = make([]domain.PrescriptionLine, 0, len(lines))
	for _, l := range lines {
		p.Lines = append(p.Lines, mapLine(l))
	}

	ps := []*domain.Prescription{&p}
	if err := s.fillNames(ctx, ps); err != nil {
		return nil, err
	}
	if err := s.fillMedicationNames(ctx, p.Lines); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update edits an active prescription and replaces its whole line set.
func (s *PrescriptionStore) Update(ctx context.Context, id int64, edit domain.PrescriptionEdit, lines []domain.LineInput) (*domain.Prescription, error) {
	normalized, err := domain.NormalizeLines(lines)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, "update prescription", func(tx *sqlx.Tx) error {
		var row prescriptionRow
		if err := tx.GetContext(ctx, &row, s.q(`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundf("prescription %d", id)
			}
			return err
		}
		if domain.State(row.State) != domain.StateActive {
			return domain.InvalidStatef("only active prescriptions may be edited; prescription %d is %s", id, row.State)
		}

		if edit.Diagnosis != nil {
			row.Diagnosis = strings.TrimSpace(*edit.Diagnosis)
		}
		if edit.Observations != nil {
			row.Observations = *edit.Observations
		}
		if edit.PatientID != nil {
			row.PatientID = *edit.PatientID
		}
		if row.Diagnosis == "" {
			return domain.Validationf("diagnosis is required")
		}

		res, err := tx.ExecContext(ctx, s.q(`UPDATE prescriptions SET diagnosis = ?, observations = ?, patient_id = ? WHERE id = ? AND state = ?`),
			row.Diagnosis, row.Observations, row.PatientID, id, string(domain.StateActive))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.InvalidStatef("prescription %d is no longer active", id)
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM prescription_lines WHERE prescription_id = ?`), id); err != nil {
			return err
		}
		return s.insertLines(ctx, tx, id, normalized)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetState moves the prescription to state and reports the rows touched,
// zero when the id is unknown. Any state may follow any other.
func (s *PrescriptionStore) SetState(ctx context.Context, id int64, state domain.State) (int64, error) {
	st, err := domain.ParseState(string(state))
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE prescriptions SET state = ? WHERE id = ?`), string(st), id)
	if err != nil {
		return 0, classify("set prescription state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("set prescription state", err)
	}
	return n, nil
}

// Delete removes the lines and then the header.
func (s *PrescriptionStore) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, "delete prescription", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM prescription_lines WHERE prescription_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM prescriptions WHERE id = ?`), id)
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

// ListByPatient returns headers only, newest first.
func (s *PrescriptionStore) ListByPatient(ctx context.Context, patientID int64) ([]domain.Prescription, error) {
	return s.selectHeaders(ctx, `WHERE patient_id = ? ORDER BY issued_at DESC, id DESC`, patientID)
}

// Search matches term against folio, diagnosis and patient name.
func (s *PrescriptionStore) Search(ctx context.Context, term string) ([]domain.Prescription, error) {
	like := likePattern(term)
	return s.selectHeaders(ctx, `WHERE `+s.contains("folio")+` OR `+s.contains("diagnosis")+`
                OR patient_id IN (SELECT id FROM patients WHERE `+s.contains("name")+`)
                ORDER BY issued_at DESC, id DESC`, like, like, like)
}

func (s *PrescriptionStore) List(ctx context.Context) ([]domain.Prescription, error) {
	return s.selectHeaders(ctx, `ORDER BY id DESC`)
}

func (s *PrescriptionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM prescriptions`); err != nil {
		return 0, classify("count prescriptions", err)
	}
	return n, nil
}

// CountByState always carries all three states.
func (s *PrescriptionStore) CountByState(ctx context.Context) (map[domain.State]int, error) {
	var rows []struct {
		State string `db:"state"`
		N     int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT state, COUNT(*) AS n FROM prescriptions GROUP BY state`); err != nil {
		return nil, classify("count prescriptions by state", err)
	}
	counts := map[domain.State]int{
		domain.StateActive:    0,
		domain.StateCompleted: 0,
		domain.StateCancelled: 0,
	}
	for _, r := range rows {
		counts[domain.State(r.State)] = r.N
	}
	return counts, nil
}

// MonthlyStats counts prescriptions per UTC calendar month for the last
// months months, the current one included, newest first. Months without
// prescriptions are reported with zero counts.
func (s *PrescriptionStore) MonthlyStats(ctx context.Context, months int) ([]MonthlyCount, error) {
	if months <= 0 {
		months = DefaultStatsMonths
	}
	now := s.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := current.AddDate(0, -(months - 1), 0)

	out := make([]MonthlyCount, months)
	index := make(map[string]int, months)
	for i := range out {
		m := current.AddDate(0, -i, 0).Format(monthLayout)
		out[i].Month = m
		index[m] = i
	}

	var rows []struct {
		IssuedAt time.Time `db:"issued_at"`
		State    string    `db:"state"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT issued_at, state FROM prescriptions WHERE issued_at >= ?`), start); err != nil {
		return nil, classify("monthly prescription stats", err)
	}
	for _, r := range rows {
		i, ok := index[r.IssuedAt.UTC().Format(monthLayout)]
		if !ok {
			continue
		}
		out[i].Total++
		if domain.State(r.State) == domain.StateCompleted {
			out[i].Completed++
		}
	}
	return out, nil
}

func (s *PrescriptionStore) selectHeaders(ctx context.Context, clause string, args ...any) ([]domain.Prescription, error) {
	var rows []prescriptionRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+prescriptionColumns+` FROM prescriptions `+clause), args...); err != nil {
		return nil, classify("select prescriptions", err)
	}
	out := make([]domain.Prescription, 0, len(rows))
	for _, r := range rows {
		out = append(out, mapPrescription(r))
	}
	ps := make([]*domain.Prescription, len(out))
	for i := range out {
		ps[i] = &out[i]
	}
	if err := s.fillNames(ctx, ps); err != nil {
		return nil, err
	}
	return out, nil
}

// fillNames merges patient and issuer display names. Missing rows leave the
// names empty.
func (s *PrescriptionStore) fillNames(ctx context.Context, ps []*domain.Prescription) error {
	patientIDs := make([]int64, 0, len(ps))
	userIDs := make([]int64, 0, len(ps))
	for _, p := range ps {
		patientIDs = append(patientIDs, p.PatientID)
		userIDs = append(userIDs, p.IssuedBy)
	}
	patients, err := s.lookupNames(ctx, "patients", "name", uniqueIDs(patientIDs))
	if err != nil {
		return err
	}
	users, err := s.lookupNames(ctx, "users", userNameExpr, uniqueIDs(userIDs))
	if err != nil {
		return err
	}
	for _, p := range ps {
		p.PatientName = patients[p.PatientID]
		p.IssuerName = users[p.IssuedBy]
	}
	return nil
}

func (s *PrescriptionStore) fillMedicationNames(ctx context.Context, lines []domain.PrescriptionLine) error {
	var ids []int64
	for _, l := range lines {
		if l.MedicationID != nil {
			ids = append(ids, *l.MedicationID)
		}
	}
	names, err := s.lookupNames(ctx, "medications", "name", uniqueIDs(ids))
	if err != nil {
		return err
	}
	for i := range lines {
		if id := lines[i].MedicationID; id != nil {
			lines[i].MedicationName = names[*id]
		}
	}
	return nil
}
