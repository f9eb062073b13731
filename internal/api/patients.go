package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinicrx/m/domain"
)

type patientRequest struct {
	Name   string `json:"name"`
	School string `json:"school"`
	Age    int    `json:"age"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
}

func (req patientRequest) patient() domain.Patient {
	return domain.Patient{Name: req.Name, School: req.School, Age: req.Age, Phone: req.Phone, Email: req.Email}
}

func (h *Handler) createPatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.stores.Patients.Create(r.Context(), req.patient())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.stores.Patients.List(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, patients)
}

func (h *Handler) searchPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.stores.Patients.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, patients)
}

func (h *Handler) patientsBySchool(w http.ResponseWriter, r *http.Request) {
	patients, err := h.stores.Patients.BySchool(r.Context(), chi.URLParam(r, "school"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, patients)
}

func (h *Handler) patientSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.stores.Patients.Schools(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, schools)
}

func (h *Handler) patientStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stores.Patients.AgeSummary(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "patient")
	if !ok {
		return
	}
	p, err := h.stores.Patients.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "patient")
	if !ok {
		return
	}
	var req patientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.stores.Patients.Update(r.Context(), id, req.patient())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) deletePatient(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := idParam(w, r, "patient")
	if !ok {
		return
	}
	deleted, err := h.stores.Patients.Delete(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "patient not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) patientPrescriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "patient")
	if !ok {
		return
	}
	if _, err := h.stores.Patients.Get(r.Context(), id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	ps, err := h.stores.Prescriptions.ListByPatient(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}
