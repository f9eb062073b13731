package store_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicrx/m/domain"
)

func TestMedicationStatusFollowsStock(t *testing.T) {
	f := newFixture(t, nil)

	med := f.medication(t, "Paracetamol", 3, 10)
	assert.Equal(t, domain.StatusReserved, med.Status)

	med, err := f.Medications.UpdateStock(f.ctx, med.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDepleted, med.Status)

	med, err = f.Medications.UpdateStock(f.ctx, med.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, med.Status)
	assert.Equal(t, 50, med.Stock)
}

func TestMedicationRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	cat, err := f.Categories.Create(f.ctx, domain.Category{Name: "Analgesics"})
	require.NoError(t, err)

	created, err := f.Medications.Create(f.ctx, domain.MedicationInput{
		ItemInput: domain.ItemInput{
			Name:       "  Ibuprofen ",
			AcquiredOn: date(2026, 1, 10),
			Stock:      20,
			MinStock:   5,
			UnitPrice:  decimal.RequireFromString("12.50"),
			CategoryID: &cat.ID,
		},
		ExpiresOn:    date(2027, 6, 30),
		Lot:          "L-778",
		Manufacturer: "Acme Labs",
	})
	require.NoError(t, err)

	got, err := f.Medications.Get(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen", got.Name)
	assert.Equal(t, domain.StatusAvailable, got.Status)
	assert.True(t, got.UnitPrice.Equal(decimal.RequireFromString("12.5")), "price %s", got.UnitPrice)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, cat.ID, *got.CategoryID)
	assert.Equal(t, "Analgesics", got.CategoryName)
	require.NotNil(t, got.ExpiresOn)
	assert.Equal(t, "2027-06-30", got.ExpiresOn.Format("2006-01-02"))
	require.NotNil(t, got.AcquiredOn)
	assert.Equal(t, "2026-01-10", got.AcquiredOn.Format("2006-01-02"))
	assert.Equal(t, "L-778", got.Lot)
	assert.Equal(t, "Acme Labs", got.Manufacturer)
	assert.WithinDuration(t, testNow, got.CreatedAt, time.Second)
}

func TestMedicationUpdateKeepsUnpatchedFields(t *testing.T) {
	f := newFixture(t, nil)
	med := f.medication(t, "Amoxicillin", 8, 4)

	updated, err := f.Medications.Update(f.ctx, med.ID, domain.MedicationPatch{
		ItemPatch: domain.ItemPatch{MinStock: intPtr(10)},
		Lot:       strPtr("B-12"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin", updated.Name)
	assert.Equal(t, 8, updated.Stock)
	assert.Equal(t, 10, updated.MinStock)
	assert.Equal(t, "B-12", updated.Lot)
	assert.Equal(t, domain.StatusReserved, updated.Status)
}

func TestMedicationUpdateClearsDates(t *testing.T) {
	f := newFixture(t, nil)
	med, err := f.Medications.Create(f.ctx, domain.MedicationInput{
		ItemInput: domain.ItemInput{Name: "Insulin", Stock: 4, AcquiredOn: date(2026, 1, 10)},
		ExpiresOn: date(2026, 6, 30),
	})
	require.NoError(t, err)
	require.NotNil(t, med.AcquiredOn)
	require.NotNil(t, med.ExpiresOn)

	kept, err := f.Medications.Update(f.ctx, med.ID, domain.MedicationPatch{Lot: strPtr("L-1")})
	require.NoError(t, err)
	assert.NotNil(t, kept.AcquiredOn)
	assert.NotNil(t, kept.ExpiresOn)

	cleared, err := f.Medications.Update(f.ctx, med.ID, domain.MedicationPatch{
		ItemPatch:      domain.ItemPatch{ClearAcquiredOn: true},
		ClearExpiresOn: true,
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.AcquiredOn)
	assert.Nil(t, cleared.ExpiresOn)
	assert.Equal(t, "L-1", cleared.Lot)

	expiring, err := f.Medications.FindExpiringWithin(f.ctx, 365)
	require.NoError(t, err)
	assert.Empty(t, expiring)
}

func TestMedicationValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.Medications.Create(f.ctx, domain.MedicationInput{ItemInput: domain.ItemInput{Name: "X", Stock: -1}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.Medications.Create(f.ctx, domain.MedicationInput{ItemInput: domain.ItemInput{Name: " "}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	med := f.medication(t, "Loratadine", 5, 1)
	_, err = f.Medications.UpdateStock(f.ctx, med.ID, -3)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.Medications.Get(f.ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestMedicationUnknownCategory(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.Medications.Create(f.ctx, domain.MedicationInput{ItemInput: domain.ItemInput{Name: "X", CategoryID: int64Ptr(99)}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMedicationNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.Medications.Get(f.ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.Medications.UpdateStock(f.ctx, 404, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := f.Medications.Delete(f.ctx, 404)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMedicationFinders(t *testing.T) {
	f := newFixture(t, nil)
	f.medication(t, "Paracetamol 500", 3, 10)
	f.medication(t, "Paracetamol Drops", 40, 10)
	f.medication(t, "Cetirizine", 0, 2)

	byName, err := f.Medications.FindByName(f.ctx, "PARACET")
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	depleted, err := f.Medications.FindByStatus(f.ctx, domain.StatusDepleted)
	require.NoError(t, err)
	require.Len(t, depleted, 1)
	assert.Equal(t, "Cetirizine", depleted[0].Name)

	_, err = f.Medications.FindByStatus(f.ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrValidation)

	low, err := f.Medications.FindLowStock(f.ctx)
	require.NoError(t, err)
	assert.Len(t, low, 2)

	n, err := f.Medications.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMedicationFindExpiringWithin(t *testing.T) {
	f := newFixture(t, nil)
	for name, exp := range map[string]*time.Time{
		"today":   date(2026, 3, 5),
		"soon":    date(2026, 3, 20),
		"later":   date(2026, 5, 1),
		"expired": date(2026, 3, 1),
		"none":    nil,
	} {
		_, err := f.Medications.Create(f.ctx, domain.MedicationInput{ItemInput: domain.ItemInput{Name: name, Stock: 1}, ExpiresOn: exp})
		require.NoError(t, err)
	}

	got, err := f.Medications.FindExpiringWithin(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "today", got[0].Name)
	assert.Equal(t, "soon", got[1].Name)

	got, err = f.Medications.FindExpiringWithin(f.ctx, 90)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMedicationDeleteKeepsPrescriptionLine(t *testing.T) {
	f := newFixture(t, nil)
	patient := f.patient(t, "Ana Ruiz")
	nurse := f.nurse(t, "nurse@clinic.test", "")
	med := f.medication(t, "Ibuprofen", 10, 1)

	p, err := f.Prescriptions.Create(f.ctx, domain.NewPrescription{Diagnosis: "Fever", PatientID: patient.ID, IssuedBy: nurse.ID},
		[]domain.LineInput{{Medication: "Ibuprofen 400mg", MedicationID: &med.ID}})
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen", p.Lines[0].MedicationName)

	deleted, err := f.Medications.Delete(f.ctx, med.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	p, err = f.Prescriptions.Get(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "Ibuprofen 400mg", p.Lines[0].Medication)
	assert.Nil(t, p.Lines[0].MedicationID)
	assert.Empty(t, p.Lines[0].MedicationName)
}

func TestMaterialMaintenance(t *testing.T) {
	f := newFixture(t, nil)

	mat, err := f.Materials.Create(f.ctx, domain.MaterialInput{ItemInput: domain.ItemInput{Name: "Nebulizer", Stock: 5, MinStock: 2}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, mat.Status)
	assert.False(t, mat.InMaintenance)

	mat, err = f.Materials.SetMaintenance(f.ctx, mat.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMaintenance, mat.Status)
	assert.True(t, mat.InMaintenance)

	mat, err = f.Materials.UpdateStock(f.ctx, mat.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMaintenance, mat.Status)

	inRepair, err := f.Materials.FindInMaintenance(f.ctx)
	require.NoError(t, err)
	require.Len(t, inRepair, 1)
	assert.Equal(t, mat.ID, inRepair[0].ID)

	mat, err = f.Materials.SetMaintenance(f.ctx, mat.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDepleted, mat.Status)

	_, err = f.Materials.SetMaintenance(f.ctx, 404, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMaterialCrud(t *testing.T) {
	f := newFixture(t, nil)

	mat, err := f.Materials.Create(f.ctx, domain.MaterialInput{ItemInput: domain.ItemInput{Name: "Gauze", Stock: 1, MinStock: 20}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, mat.Status)

	mat, err = f.Materials.Update(f.ctx, mat.ID, domain.MaterialPatch{ItemPatch: domain.ItemPatch{Name: strPtr("Sterile gauze"), Stock: intPtr(30)}})
	require.NoError(t, err)
	assert.Equal(t, "Sterile gauze", mat.Name)
	assert.Equal(t, domain.StatusAvailable, mat.Status)

	list, err := f.Materials.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	found, err := f.Materials.FindByName(f.ctx, "sterile")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	mat, err = f.Materials.Update(f.ctx, mat.ID, domain.MaterialPatch{ItemPatch: domain.ItemPatch{AcquiredOn: date(2026, 2, 1)}})
	require.NoError(t, err)
	require.NotNil(t, mat.AcquiredOn)
	mat, err = f.Materials.Update(f.ctx, mat.ID, domain.MaterialPatch{ItemPatch: domain.ItemPatch{ClearAcquiredOn: true}})
	require.NoError(t, err)
	assert.Nil(t, mat.AcquiredOn)

	deleted, err := f.Materials.Delete(f.ctx, mat.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.Materials.Get(f.ctx, mat.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
