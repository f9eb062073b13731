package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"clinicrx/m/domain"
)

// itemRequest is shared by create and update. On update, absent fields keep
// their stored value.
type itemRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	AcquiredOn      *string          `json:"acquired_on"`
	Stock           *int             `json:"stock"`
	MinStock        *int             `json:"min_stock"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	CategoryID      *int64           `json:"category_id"`
	ClearCategory   bool             `json:"clear_category"`
	ClearAcquiredOn bool             `json:"clear_acquired_on"`
}

func (req itemRequest) input() (domain.ItemInput, error) {
	var in domain.ItemInput
	patch, err := req.patch()
	if err != nil {
		return in, err
	}
	patch.Apply(&in)
	return in, nil
}

func (req itemRequest) patch() (domain.ItemPatch, error) {
	acquired, err := parseDate("acquired_on", req.AcquiredOn)
	if err != nil {
		return domain.ItemPatch{}, err
	}
	return domain.ItemPatch{
		Name:            req.Name,
		Description:     req.Description,
		AcquiredOn:      acquired,
		Stock:           req.Stock,
		MinStock:        req.MinStock,
		UnitPrice:       req.UnitPrice,
		CategoryID:      req.CategoryID,
		ClearCategory:   req.ClearCategory,
		ClearAcquiredOn: req.ClearAcquiredOn,
	}, nil
}

type medicationRequest struct {
	itemRequest
	ExpiresOn      *string `json:"expires_on"`
	Lot            *string `json:"lot"`
	Manufacturer   *string `json:"manufacturer"`
	ClearExpiresOn bool    `json:"clear_expires_on"`
}

type stockRequest struct {
	Stock *int `json:"stock"`
}

func decodeStock(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.Stock == nil {
		respondError(w, http.StatusBadRequest, "stock is required")
		return 0, false
	}
	return *req.Stock, true
}

// Medications

func (h *Handler) createMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := req.input()
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	expires, err := parseDate("expires_on", req.ExpiresOn)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	in := domain.MedicationInput{ItemInput: item, ExpiresOn: expires}
	if req.Lot != nil {
		in.Lot = *req.Lot
	}
	if req.Manufacturer != nil {
		in.Manufacturer = *req.Manufacturer
	}

	med, err := h.stores.Medications.Create(r.Context(), in)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, med)
}

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.stores.Medications.List(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) getMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "medication")
	if !ok {
		return
	}
	med, err := h.stores.Medications.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) updateMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "medication")
	if !ok {
		return
	}
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := req.patch()
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	expires, err := parseDate("expires_on", req.ExpiresOn)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	patch := domain.MedicationPatch{
		ItemPatch:      item,
		ExpiresOn:      expires,
		Lot:            req.Lot,
		Manufacturer:   req.Manufacturer,
		ClearExpiresOn: req.ClearExpiresOn,
	}

	med, err := h.stores.Medications.Update(r.Context(), id, patch)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) updateMedicationStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "medication")
	if !ok {
		return
	}
	stock, ok := decodeStock(w, r)
	if !ok {
		return
	}
	med, err := h.stores.Medications.UpdateStock(r.Context(), id, stock)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) deleteMedication(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := idParam(w, r, "medication")
	if !ok {
		return
	}
	deleted, err := h.stores.Medications.Delete(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) searchMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.stores.Medications.FindByName(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) medicationsByStatus(w http.ResponseWriter, r *http.Request) {
	meds, err := h.stores.Medications.FindByStatus(r.Context(), domain.Status(chi.URLParam(r, "status")))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) lowStockMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.stores.Medications.FindLowStock(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

func (h *Handler) expiringMedications(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	meds, err := h.stores.Medications.FindExpiringWithin(r.Context(), days)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meds)
}

// Materials

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := req.input()
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	mat, err := h.stores.Materials.Create(r.Context(), domain.MaterialInput{ItemInput: item})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, mat)
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	mats, err := h.stores.Materials.List(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mats)
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "material")
	if !ok {
		return
	}
	mat, err := h.stores.Materials.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mat)
}

func (h *Handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "material")
	if !ok {
		return
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	mat, err := h.stores.Materials.Update(r.Context(), id, domain.MaterialPatch{ItemPatch: patch})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mat)
}

func (h *Handler) updateMaterialStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "material")
	if !ok {
		return
	}
	stock, ok := decodeStock(w, r)
	if !ok {
		return
	}
	mat, err := h.stores.Materials.UpdateStock(r.Context(), id, stock)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mat)
}

func (h *Handler) setMaterialMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "material")
	if !ok {
		return
	}
	var req struct {
		InMaintenance *bool `json:"in_maintenance"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.InMaintenance == nil {
		respondError(w, http.StatusBadRequest, "in_maintenance is required")
		return
	}
	mat, err := h.stores.Materials.SetMaintenance(r.Context(), id, *req.InMaintenance)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mat)
}

func (h *Handler) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := idParam(w, r, "material")
	if !ok {
		return
	}
	deleted, err := h.stores.Materials.Delete(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "material not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) searchMaterials(w http.ResponseWriter, r *http.Request) {
	mats, err := h.stores.Materials.FindByName(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mats)
}

func (h *Handler) materialsByStatus(w http.ResponseWriter, r *http.Request) {
	mats, err := h.stores.Materials.FindByStatus(r.Context(), domain.Status(chi.URLParam(r, "status")))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mats)
}

func (h *Handler) lowStockMaterials(w http.ResponseWriter, r *http.Request) {
	mats, err := h.stores.Materials.FindLowStock(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mats)
}

func (h *Handler) materialsInMaintenance(w http.ResponseWriter, r *http.Request) {
	mats, err := h.stores.Materials.FindInMaintenance(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mats)
}
