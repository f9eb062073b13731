package api

import (
	"net/http"
	"strconv"
)

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.stores.Stats.Summary(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// monthlyPrescriptions accepts ?months=N; the default window is six months.
func (h *Handler) monthlyPrescriptions(w http.ResponseWriter, r *http.Request) {
	months := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24 {
			respondError(w, http.StatusBadRequest, "months must be between 1 and 24")
			return
		}
		months = n
	}
	stats, err := h.stores.Prescriptions.MonthlyStats(r.Context(), months)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
