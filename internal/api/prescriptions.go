package api

import (
	"net/http"
	"time"

	"clinicrx/m/domain"
)

type lineRequest struct {
	Medication   string `json:"medication"`
	Quantity     *int   `json:"quantity"`
	Dosage       string `json:"dosage"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
	MedicationID *int64 `json:"medication_id"`
}

func lineInputs(reqs []lineRequest) []domain.LineInput {
	lines := make([]domain.LineInput, 0, len(reqs))
	for _, l := range reqs {
		lines = append(lines, domain.LineInput{
			Medication:   l.Medication,
			Quantity:     l.Quantity,
			Dosage:       l.Dosage,
			Duration:     l.Duration,
			Instructions: l.Instructions,
			MedicationID: l.MedicationID,
		})
	}
	return lines
}

type createPrescriptionRequest struct {
	Folio        string        `json:"folio"`
	IssuedAt     *time.Time    `json:"issued_at"`
	Diagnosis    string        `json:"diagnosis"`
	Observations string        `json:"observations"`
	PatientID    int64         `json:"patient_id"`
	Lines        []lineRequest `json:"lines"`
}

type updatePrescriptionRequest struct {
	Diagnosis    *string       `json:"diagnosis"`
	Observations *string       `json:"observations"`
	PatientID    *int64        `json:"patient_id"`
	Lines        []lineRequest `json:"lines"`
}

// createPrescription issues a prescription on behalf of the authenticated
// user.
func (h *Handler) createPrescription(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	header := domain.NewPrescription{
		Folio:        req.Folio,
		Diagnosis:    req.Diagnosis,
		Observations: req.Observations,
		PatientID:    req.PatientID,
		IssuedBy:     userIDFrom(r),
	}
	if req.IssuedAt != nil {
		header.IssuedAt = *req.IssuedAt
	}

	p, err := h.stores.Prescriptions.Create(r.Context(), header, lineInputs(req.Lines))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	h.log.Info().Str("request_id", requestIDFrom(r)).Str("folio", p.Folio).Int64("prescription_id", p.ID).Msg("prescription issued")
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	ps, err := h.stores.Prescriptions.List(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

func (h *Handler) searchPrescriptions(w http.ResponseWriter, r *http.Request) {
	ps, err := h.stores.Prescriptions.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

func (h *Handler) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "prescription")
	if !ok {
		return
	}
	p, err := h.stores.Prescriptions.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// updatePrescription replaces the header fields present in the body and the
// whole line set.
func (h *Handler) updatePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "prescription")
	if !ok {
		return
	}
	var req updatePrescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	edit := domain.PrescriptionEdit{Diagnosis: req.Diagnosis, Observations: req.Observations, PatientID: req.PatientID}

	p, err := h.stores.Prescriptions.Update(r.Context(), id, edit, lineInputs(req.Lines))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) setPrescriptionState(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "prescription")
	if !ok {
		return
	}
	var req struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.stores.Prescriptions.SetState(r.Context(), id, domain.State(req.State))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if n == 0 {
		respondError(w, http.StatusNotFound, "prescription not found")
		return
	}
	p, err := h.stores.Prescriptions.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) deletePrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := idParam(w, r, "prescription")
	if !ok {
		return
	}
	deleted, err := h.stores.Prescriptions.Delete(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "prescription not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
