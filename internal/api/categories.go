package api

import (
	"net/http"

	"clinicrx/m/domain"
)

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := h.stores.Categories.Create(r.Context(), domain.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cat)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.stores.Categories.List(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cats)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "category")
	if !ok {
		return
	}
	cat, err := h.stores.Categories.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "category")
	if !ok {
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := h.stores.Categories.Update(r.Context(), id, domain.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := idParam(w, r, "category")
	if !ok {
		return
	}
	deleted, err := h.stores.Categories.Delete(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "category not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
