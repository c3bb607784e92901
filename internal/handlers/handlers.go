package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"route-optimizer/internal/archive"
	"route-optimizer/internal/database"
	"route-optimizer/internal/events"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/pathfinding"
	"route-optimizer/internal/routing"
)

// StatusClientClosedRequest is reported when the caller cancelled the request
const StatusClientClosedRequest = 499

// Handler provides common handler utilities and dependencies
type Handler struct {
	Store    database.DataStore
	Sessions *routing.SessionManager
	// Engine is nil when no road network is loaded
	Engine    *pathfinding.Engine
	Geocoder  *geocoding.Fallback
	Publisher events.Publisher
	Archiver  archive.Archiver

	validate *validator.Validate
}

// New creates a Handler. Nil publisher and archiver are replaced by no-ops.
func New(store database.DataStore, sessions *routing.SessionManager, engine *pathfinding.Engine,
	geocoder *geocoding.Fallback, publisher events.Publisher, archiver archive.Archiver) *Handler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if archiver == nil {
		archiver = archive.NoopArchiver{}
	}
	return &Handler{
		Store:     store,
		Sessions:  sessions,
		Engine:    engine,
		Geocoder:  geocoder,
		Publisher: publisher,
		Archiver:  archiver,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts every API endpoint on router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.HandleHealthCheck).Methods(http.MethodGet)

	api.HandleFunc("/routes/optimize", h.HandleOptimizeRoute).Methods(http.MethodPost)
	api.HandleFunc("/routes/history", h.HandleListHistory).Methods(http.MethodGet)
	api.HandleFunc("/routes/history/{id}", h.HandleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/routes/sessions/{id}", h.HandleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/routes/sessions/{id}", h.HandleClearSession).Methods(http.MethodDelete)

	api.HandleFunc("/paths/shortest", h.HandleShortestPath).Methods(http.MethodPost)

	api.HandleFunc("/locations/search", h.HandleLocationSearch).Methods(http.MethodGet)
	api.HandleFunc("/locations/reverse", h.HandleReverseGeocode).Methods(http.MethodGet)
	api.HandleFunc("/locations/samples", h.HandleSampleLocations).Methods(http.MethodGet)
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode response: err=%v", err)
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// decodeAndValidate reads a JSON body into dst and runs its struct tags.
// It writes the 400 response itself and reports whether to continue.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.handleValidationError(w, "Invalid request body", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.handleValidationError(w, "Request failed validation", fieldErrors(verrs))
			return false
		}
		h.handleValidationError(w, err.Error(), nil)
		return false
	}
	return true
}

// fieldErrors maps validator errors to "field": "rule" pairs
func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		out[field] = rule
	}
	return out
}

// handleNotFound handles 404 errors
func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string, details interface{}) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// handleRoutingError maps optimizer failures to HTTP statuses
func (h *Handler) handleRoutingError(w http.ResponseWriter, err error) {
	var invalid *routing.ErrInvalidInput
	switch {
	case errors.As(err, &invalid):
		h.handleValidationError(w, invalid.Reason, map[string]string{"field": invalid.Field})
	case errors.Is(err, routing.ErrSuperseded):
		h.writeError(w, http.StatusConflict, "SUPERSEDED", "A newer request for this session replaced this one", nil)
	case errors.Is(err, context.Canceled):
		h.writeError(w, StatusClientClosedRequest, "REQUEST_CANCELLED", "The request was cancelled", nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Route optimization timed out", nil)
	default:
		log.Printf("[ERROR] Route optimization failed: err=%v", err)
		h.writeError(w, http.StatusUnprocessableEntity, "ROUTING_FAILED", err.Error(), nil)
	}
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// checkNotFound checks if an error is a not found error
func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "connected"

	if h.Store == nil {
		dbStatus = "disabled"
	} else if err := h.Store.HealthCheck(r.Context()); err != nil {
		log.Printf("[WARN] Health check failed: err=%v", err)
		status = "degraded"
		dbStatus = "error"
	}

	roadNetwork := "none"
	if h.Engine != nil {
		roadNetwork = fmt.Sprintf("%d locations", h.Engine.Graph().Size())
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":       status,
		"version":      "1.0.0",
		"database":     dbStatus,
		"road_network": roadNetwork,
	})
}
