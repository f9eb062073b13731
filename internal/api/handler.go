package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinicrx/m/domain"
	"clinicrx/m/internal/store"
)

type ctxKey string

const (
	ctxUserID    ctxKey = "userID"
	ctxRole      ctxKey = "role"
	ctxRequestID ctxKey = "requestID"
)

const requestIDHeader = "X-Request-Id"

const tokenTTL = 24 * time.Hour

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	stores *store.Stores
	secret string
	log    zerolog.Logger
}

// New constructs a Handler.
func New(stores *store.Stores, secret string, log zerolog.Logger) *Handler {
	return &Handler{stores: stores, secret: secret, log: log}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}))

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/categories", func(r chi.Router) {
			r.Post("/", h.createCategory)
			r.Get("/", h.listCategories)
			r.Get("/{id}", h.getCategory)
			r.Put("/{id}", h.updateCategory)
			r.Delete("/{id}", h.deleteCategory)
		})

		pr.Route("/patients", func(r chi.Router) {
			r.Post("/", h.createPatient)
			r.Get("/", h.listPatients)
			r.Get("/search", h.searchPatients)
			r.Get("/stats", h.patientStats)
			r.Get("/schools", h.patientSchools)
			r.Get("/school/{school}", h.patientsBySchool)
			r.Get("/{id}", h.getPatient)
			r.Put("/{id}", h.updatePatient)
			r.Delete("/{id}", h.deletePatient)
			r.Get("/{id}/prescriptions", h.patientPrescriptions)
		})

		pr.Route("/medications", func(r chi.Router) {
			r.Post("/", h.createMedication)
			r.Get("/", h.listMedications)
			r.Get("/search", h.searchMedications)
			r.Get("/status/{status}", h.medicationsByStatus)
			r.Get("/low-stock", h.lowStockMedications)
			r.Get("/expiring", h.expiringMedications)
			r.Get("/{id}", h.getMedication)
			r.Put("/{id}", h.updateMedication)
			r.Post("/{id}/stock", h.updateMedicationStock)
			r.Delete("/{id}", h.deleteMedication)
		})

		pr.Route("/materials", func(r chi.Router) {
			r.Post("/", h.createMaterial)
			r.Get("/", h.listMaterials)
			r.Get("/search", h.searchMaterials)
			r.Get("/status/{status}", h.materialsByStatus)
			r.Get("/low-stock", h.lowStockMaterials)
			r.Get("/maintenance", h.materialsInMaintenance)
			r.Get("/{id}", h.getMaterial)
			r.Put("/{id}", h.updateMaterial)
			r.Post("/{id}/stock", h.updateMaterialStock)
			r.Post("/{id}/maintenance", h.setMaterialMaintenance)
			r.Delete("/{id}", h.deleteMaterial)
		})

		pr.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", h.createPrescription)
			r.Get("/", h.listPrescriptions)
			r.Get("/search", h.searchPrescriptions)
			r.Get("/{id}", h.getPrescription)
			r.Put("/{id}", h.updatePrescription)
			r.Patch("/{id}/state", h.setPrescriptionState)
			r.Delete("/{id}", h.deletePrescription)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/summary", h.summary)
			r.Get("/prescriptions/monthly", h.monthlyPrescriptions)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Middleware

// requestID tags each request with the caller's X-Request-Id or a fresh
// UUID and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(ctxRequestID).(string); ok {
		return id
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.Info().
			Str("request_id", requestIDFrom(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	now := time.Now()
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.UserID <= 0 {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	current, ok := r.Context().Value(ctxRole).(string)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserID).(int64)
	return id
}

// Helpers

// statusFor maps a domain error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondStoreError writes err with the status of its kind. Server-side
// failures are logged and their detail withheld.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", requestIDFrom(r)).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func idParam(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// parseDate reads an optional YYYY-MM-DD value.
func parseDate(field string, val *string) (*time.Time, error) {
	if val == nil {
		return nil, nil
	}
	s := nullIfEmpty(*val)
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, domain.Validationf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
