package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicrx/m/domain"
	"clinicrx/m/internal/database"
	"clinicrx/m/internal/migrations"
	"clinicrx/m/internal/store"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Apply(db))

	h := New(store.New(db), "test-secret", zerolog.Nop())
	return &testServer{t: t, handler: h.Router()}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(email, role string) (string, domain.User) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "staff", "full_name": "Staff " + role, "email": email, "password": "s3cret", "role": role,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[authResponse](s.t, rec)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token, resp.User
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCarriesRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/patients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/patients", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	token, user := s.register("nurse@clinic.test", domain.RoleNurse)
	assert.Empty(t, user.Password)
	assert.Equal(t, domain.RoleNurse, user.Role)

	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "NURSE@clinic.test", "password": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "x@clinic.test", "password": "x", "role": "doctor"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", loginRequest{Email: "nurse@clinic.test", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", loginRequest{Email: "nobody@clinic.test", Password: "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/reset-password", token, map[string]string{"new_password": "n3w"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/auth/login", "", loginRequest{Email: "nurse@clinic.test", Password: "n3w"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[authResponse](t, rec).Token)
}

func TestPrescriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, user := s.register("admin@clinic.test", domain.RoleAdmin)

	rec := s.do(http.MethodPost, "/patients", token, patientRequest{Name: "Ana Ruiz", Age: 15, School: "North High"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patient := decode[domain.Patient](t, rec)

	rec = s.do(http.MethodPost, "/prescriptions", token, map[string]any{
		"diagnosis":  "Flu",
		"patient_id": patient.ID,
		"lines":      []map[string]any{{"medication": "Ibuprofen", "dosage": "400mg"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.Prescription](t, rec)
	assert.Regexp(t, `^REC-\d{6}-\d{3}$`, p.Folio)
	assert.Equal(t, domain.StateActive, p.State)
	assert.Equal(t, user.ID, p.IssuedBy)
	assert.Equal(t, "Staff admin", p.IssuerName)
	assert.Equal(t, "Ana Ruiz", p.PatientName)
	require.Len(t, p.Lines, 1)
	assert.Equal(t, 1, p.Lines[0].Quantity)

	path := fmt.Sprintf("/prescriptions/%d", p.ID)

	rec = s.do(http.MethodPut, path, token, map[string]any{
		"diagnosis": "Influenza A",
		"lines":     []map[string]any{{"medication": "Oseltamivir", "quantity": 10}, {"medication": "Paracetamol"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Prescription](t, rec)
	assert.Equal(t, "Influenza A", updated.Diagnosis)
	assert.Len(t, updated.Lines, 2)

	rec = s.do(http.MethodPatch, path+"/state", token, map[string]string{"state": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, path+"/state", token, map[string]string{"state": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StateCompleted, decode[domain.Prescription](t, rec).State)

	rec = s.do(http.MethodPut, path, token, map[string]any{"diagnosis": "Changed"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/patients/%d/prescriptions", patient.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Prescription](t, rec), 1)

	rec = s.do(http.MethodGet, "/prescriptions/search?q=influenza", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Prescription](t, rec), 1)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/patients/%d", patient.ID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPatch, path+"/state", token, map[string]string{"state": "active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePrescriptionNeedsAdmin(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.register("admin@clinic.test", domain.RoleAdmin)
	nurse, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/patients", nurse, patientRequest{Name: "Ana Ruiz", Age: 15})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patient := decode[domain.Patient](t, rec)
	rec = s.do(http.MethodPost, "/prescriptions", nurse, map[string]any{"diagnosis": "Flu", "patient_id": patient.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	path := fmt.Sprintf("/prescriptions/%d", decode[domain.Prescription](t, rec).ID)

	rec = s.do(http.MethodDelete, path, nurse, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodGet, path, nurse, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, path, nurse, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePrescriptionRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/prescriptions", token, map[string]any{"diagnosis": "Flu", "patient_id": 404})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/prescriptions", token, map[string]any{
		"diagnosis": "Flu", "patient_id": 1, "lines": []map[string]any{{"medication": "X", "quantity": "two"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/prescriptions", token, map[string]any{"diagnosis": "", "patient_id": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/prescriptions", token, map[string]any{"diagnosis": "Flu", "patient_id": 1, "unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMedicationStockRoutes(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/medications", token, map[string]any{
		"name": "Paracetamol", "stock": 3, "min_stock": 10, "unit_price": "0.35", "expires_on": "2027-01-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	med := decode[domain.Medication](t, rec)
	assert.Equal(t, domain.StatusReserved, med.Status)

	stock := fmt.Sprintf("/medications/%d/stock", med.ID)
	rec = s.do(http.MethodPost, stock, token, map[string]int{"stock": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusDepleted, decode[domain.Medication](t, rec).Status)

	rec = s.do(http.MethodPost, stock, token, map[string]int{"stock": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusAvailable, decode[domain.Medication](t, rec).Status)

	rec = s.do(http.MethodPost, stock, token, map[string]int{"stock": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/medications", token, map[string]any{"name": "X", "expires_on": "31/01/2027"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/medications/status/available", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Medication](t, rec), 1)

	rec = s.do(http.MethodGet, "/medications/status/unknown", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/medications/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMedicationUpdateClearsDates(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/medications", token, map[string]any{
		"name": "Insulin", "stock": 5, "acquired_on": "2026-01-10", "expires_on": "2026-06-30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	med := decode[domain.Medication](t, rec)
	path := fmt.Sprintf("/medications/%d", med.ID)

	rec = s.do(http.MethodPut, path, token, map[string]any{"acquired_on": "", "expires_on": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	kept := decode[domain.Medication](t, rec)
	assert.NotNil(t, kept.AcquiredOn)
	assert.NotNil(t, kept.ExpiresOn)

	rec = s.do(http.MethodPut, path, token, map[string]any{"clear_acquired_on": true, "clear_expires_on": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := decode[domain.Medication](t, rec)
	assert.Nil(t, cleared.AcquiredOn)
	assert.Nil(t, cleared.ExpiresOn)
	assert.Equal(t, 5, cleared.Stock)
}

func TestMaterialMaintenanceRoute(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/materials", token, map[string]any{"name": "Nebulizer", "stock": 2, "min_stock": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mat := decode[domain.Material](t, rec)

	rec = s.do(http.MethodPost, fmt.Sprintf("/materials/%d/maintenance", mat.ID), token, map[string]bool{"in_maintenance": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusMaintenance, decode[domain.Material](t, rec).Status)

	rec = s.do(http.MethodGet, "/materials/maintenance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Material](t, rec), 1)
}

func TestCategoryDeleteRules(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.register("admin@clinic.test", domain.RoleAdmin)
	nurse, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/categories", nurse, categoryRequest{Name: "Analgesics"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cat := decode[domain.Category](t, rec)

	rec = s.do(http.MethodPost, "/medications", nurse, map[string]any{"name": "Ibuprofen", "stock": 5, "category_id": cat.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	path := fmt.Sprintf("/categories/%d", cat.ID)
	rec = s.do(http.MethodDelete, path, nurse, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, "/categories/999", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryRoute(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/medications", token, map[string]any{"name": "Paracetamol", "stock": 3, "min_stock": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/reports/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[store.Summary](t, rec)
	assert.Equal(t, 1, sum.Medications)
	assert.Equal(t, 1, sum.LowStockMedications)
	assert.Equal(t, 0, sum.PrescriptionsByState[domain.StateActive])
}

func TestPatientStatsRoutes(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	for _, p := range []patientRequest{
		{Name: "Ana Ruiz", School: "North High", Age: 16},
		{Name: "JOSÉ ÁLVAREZ", School: "ESCUELA TÉCNICA", Age: 21},
		{Name: "Luis Pérez", School: "North High", Age: 44},
	} {
		rec := s.do(http.MethodPost, "/patients", token, p)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(http.MethodGet, "/patients/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[store.AgeSummary](t, rec)
	assert.Equal(t, 3, stats.Patients)
	assert.InDelta(t, 27.0, stats.AverageAge, 0.001)
	assert.Equal(t, 2, stats.Schools)
	require.Len(t, stats.Ranges, 4)
	assert.Equal(t, 1, stats.Ranges[0].Count)
	assert.Equal(t, 1, stats.Ranges[1].Count)
	assert.Equal(t, 0, stats.Ranges[2].Count)
	assert.Equal(t, 1, stats.Ranges[3].Count)

	rec = s.do(http.MethodGet, "/patients/schools", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ESCUELA TÉCNICA", "North High"}, decode[[]string](t, rec))

	rec = s.do(http.MethodGet, "/patients/school/north", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Patient](t, rec), 2)

	rec = s.do(http.MethodGet, "/patients/search?q=jos%C3%A9", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Patient](t, rec), 1)
}

func TestMonthlyPrescriptionsRoute(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("nurse@clinic.test", domain.RoleNurse)

	rec := s.do(http.MethodPost, "/patients", token, patientRequest{Name: "Ana Ruiz", Age: 15})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patient := decode[domain.Patient](t, rec)
	rec = s.do(http.MethodPost, "/prescriptions", token, map[string]any{"diagnosis": "Flu", "patient_id": patient.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/reports/prescriptions/monthly", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	months := decode[[]store.MonthlyCount](t, rec)
	require.Len(t, months, store.DefaultStatsMonths)
	assert.Equal(t, 1, months[0].Total)
	assert.Zero(t, months[0].Completed)

	rec = s.do(http.MethodGet, "/reports/prescriptions/monthly?months=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.MonthlyCount](t, rec), 3)

	rec = s.do(http.MethodGet, "/reports/prescriptions/monthly?months=zero", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
